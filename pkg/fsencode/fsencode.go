// Package fsencode implements the fncache/simple filesystem path encodings used
// to map repository paths onto store-safe filenames: byte-level rewrites for
// control characters and Windows-reserved names, plus a SHA-1 long-path fallback
// once the encoded path would exceed the on-disk path length budget.
//
// The encodings are bit-exact with Mercurial's fncache and simple "store"
// layouts; golden vectors in fsencode_test.go are carried over from the
// reference implementation rather than invented.
package fsencode

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/cuemby/mononoke-wal/pkg/mpath"
)

// MaxStorePathLen is the length above which fncache falls back to hashencode.
const MaxStorePathLen = 120

var hexDigits = []byte("0123456789abcdef")

func hexenc(b byte) []byte {
	return []byte{'~', hexDigits[b>>4], hexDigits[b&0xf]}
}

func needsHexEscape(b byte) bool {
	switch {
	case b <= 31 || b >= 126:
		return true
	case b == '\\' || b == ':' || b == '*' || b == '?' || b == '"' || b == '<' || b == '>' || b == '|':
		return true
	default:
		return false
	}
}

type upperEncoding int

const (
	toUnderscoreAndLower upperEncoding = iota
	toUpper
)

// direncode appends a literal ".hg" to directory components that would
// otherwise collide with Mercurial's revlog file suffixes.
func direncode(elem []byte) []byte {
	ret := append([]byte(nil), elem...)
	if hasSuffix(elem, ".hg") || hasSuffix(elem, ".i") || hasSuffix(elem, ".d") {
		ret = append(ret, '.', 'h', 'g')
	}
	return ret
}

func hasSuffix(b []byte, suffix string) bool {
	if len(b) < len(suffix) {
		return false
	}
	return string(b[len(b)-len(suffix):]) == suffix
}

func fnencodeInternal(elem []byte, upper upperEncoding, underscoreTo []byte) []byte {
	ret := make([]byte, 0, len(elem))
	for _, e := range elem {
		switch {
		case needsHexEscape(e):
			ret = append(ret, hexenc(e)...)
		case e >= 'A' && e <= 'Z':
			if upper == toUnderscoreAndLower {
				ret = append(ret, '_', e-'A'+'a')
			} else {
				ret = append(ret, e)
			}
		case e == '_':
			ret = append(ret, underscoreTo...)
		default:
			ret = append(ret, e)
		}
	}
	return ret
}

// fnencode escapes control/reserved bytes and, unless forfncache, falls back to
// an uppercase-preserving encoding (and then a ':'-for-'_' encoding) when the
// default encoding would exceed 255 bytes.
func fnencode(elem []byte, forfncache bool) []byte {
	ret := fnencodeInternal(elem, toUnderscoreAndLower, []byte("__"))
	if !forfncache && len(ret) > 255 {
		upperRet := fnencodeInternal(elem, toUpper, []byte("__"))
		if len(upperRet) > 255 {
			return fnencodeInternal(elem, toUpper, []byte(":"))
		}
		return upperRet
	}
	return ret
}

// lowerencode hex-escapes the same byte set as fnencode but folds uppercase
// letters to plain lowercase instead of underscore-prefixing them.
func lowerencode(elem []byte) []byte {
	ret := make([]byte, 0, len(elem))
	for _, e := range elem {
		switch {
		case needsHexEscape(e):
			ret = append(ret, hexenc(e)...)
		case e >= 'A' && e <= 'Z':
			ret = append(ret, e-'A'+'a')
		default:
			ret = append(ret, e)
		}
	}
	return ret
}

// auxencode hex-escapes a leading '.'/' ' (when dotencode is set), hex-escapes
// the third character of a Windows-reserved base name, and always hex-escapes a
// trailing '.' or ' '.
func auxencode(elem []byte, dotencode bool) []byte {
	if len(elem) == 0 {
		return nil
	}

	var ret []byte
	first, rest := elem[0], elem[1:]
	if dotencode && (first == '.' || first == ' ') {
		ret = append(append([]byte(nil), hexenc(first)...), rest...)
	} else {
		pos := len(elem)
		for i, c := range elem {
			if c == '.' {
				pos = i
				break
			}
		}
		prefixLen := pos
		if prefixLen > 3 {
			prefixLen = 3
		}
		base := string(elem[:prefixLen])
		switch {
		case pos == 3 && (base == "aux" || base == "con" || base == "prn" || base == "nul"):
			ret = reservedNameEncode(elem)
		case pos == 4 && (base == "com" || base == "lpt") && elem[3] >= '1' && elem[3] <= '9':
			ret = reservedNameEncode(elem)
		default:
			ret = append([]byte(nil), elem...)
		}
	}

	if n := len(ret); n > 0 {
		last := ret[n-1]
		if last == '.' || last == ' ' {
			ret = append(ret[:n-1], hexenc(last)...)
		}
	}
	return ret
}

func reservedNameEncode(elem []byte) []byte {
	ret := make([]byte, 0, len(elem)+2)
	ret = append(ret, elem[:2]...)
	ret = append(ret, hexenc(elem[2])...)
	ret = append(ret, elem[3:]...)
	return ret
}

// getExtension returns the basename's extension including the leading '.', or
// nil if there is none or the name starts with '.'.
func getExtension(basename []byte) []byte {
	idx := -1
	for i := len(basename) - 1; i >= 0; i-- {
		if basename[i] == '.' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil
	}
	return basename[idx:]
}

func hashedFile(dirs [][]byte, file []byte) [20]byte {
	joined := make([]byte, 0, 64)
	for i, d := range dirs {
		if i > 0 {
			joined = append(joined, '/')
		}
		joined = append(joined, direncode(d)...)
	}
	if len(dirs) > 0 {
		joined = append(joined, '/')
	}
	joined = append(joined, file...)
	return sha1.Sum(joined)
}

func fsencodeFilter(p []byte, dotencode bool) []byte {
	return auxencode(fnencode(p, true), dotencode)
}

// FncacheEncode implements Mercurial's fncache store path encoding.
func FncacheEncode(path mpath.Path, dotencode bool) []byte {
	dirs := path.Dirs()
	basename := path.Basename()

	encodedDirs := make([][]byte, len(dirs))
	for i, d := range dirs {
		encodedDirs[i] = fsencodeFilter(direncode(d), dotencode)
	}
	encodedBase := fsencodeFilter(basename, dotencode)

	full := joinSlash(append(append([][]byte{}, encodedDirs...), encodedBase))
	if len(full) > MaxStorePathLen {
		return hashencode(dirs, basename, dotencode)
	}
	return full
}

// SimpleEncode implements the "store"-without-"fncache" path encoding: no
// auxencode pass and no long-path fallback.
func SimpleEncode(path mpath.Path) []byte {
	dirs := path.Dirs()
	basename := path.Basename()

	encodedDirs := make([][]byte, len(dirs))
	for i, d := range dirs {
		encodedDirs[i] = fnencode(direncode(d), false)
	}
	encodedBase := fnencode(basename, false)

	return joinSlash(append(append([][]byte{}, encodedDirs...), encodedBase))
}

func joinSlash(parts [][]byte) []byte {
	n := 0
	for i, p := range parts {
		n += len(p)
		if i > 0 {
			n++
		}
	}
	ret := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, p...)
	}
	return ret
}

// hashencode is core Mercurial's long-path fallback: the result always starts
// with "dh/", keeps the original extension, and embeds a SHA-1 of the full
// (direncoded) path so distinct long paths never collide even once truncated.
func hashencode(dirs [][]byte, file []byte, dotencode bool) []byte {
	sum := hashedFile(dirs, file)
	hexSha := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(hexSha, sum[:])

	processed := make([][]byte, len(dirs))
	for i, d := range dirs {
		processed[i] = auxencode(lowerencode(direncode(d)), dotencode)
	}

	const dirPrefixLen = 8
	prefixLen := 0
	if len(processed) > 0 {
		prefixLen = len(processed[0])
	}
	maxShortDirsLen := 8*(dirPrefixLen+1) - prefixLen

	var shortdirs [][]byte
	shortdirsLen := 0
	for _, p := range processed[minInt(1, len(processed)):] {
		size := dirPrefixLen
		if len(p) < size {
			size = len(p)
		}
		dir := append([]byte(nil), p[:size]...)
		if n := len(dir); n > 0 && (dir[n-1] == '.' || dir[n-1] == ' ') {
			dir[n-1] = '_'
		}

		if shortdirsLen == 0 {
			shortdirsLen = len(dir)
		} else {
			t := shortdirsLen + 1 + len(dir)
			if t > maxShortDirsLen {
				break
			}
			shortdirsLen = t
		}
		shortdirs = append(shortdirs, dir)
	}

	shortdirsJoined := joinSlash(shortdirs)
	if len(shortdirsJoined) > 0 {
		shortdirsJoined = append(shortdirsJoined, '/')
	}

	basename := auxencode(lowerencode(file), dotencode)
	extension := getExtension(basename)

	fixedLen := len("dh/") + len(shortdirsJoined) + len(hexSha) + len(extension)
	spaceLeft := MaxStorePathLen - fixedLen
	fillerSize := len(basename)
	if fillerSize > spaceLeft {
		fillerSize = spaceLeft
	}
	if fillerSize < 0 {
		fillerSize = 0
	}
	filler := basename[:fillerSize]

	out := make([]byte, 0, fixedLen+len(filler))
	out = append(out, "dh/"...)
	out = append(out, shortdirsJoined...)
	out = append(out, filler...)
	out = append(out, hexSha...)
	out = append(out, extension...)
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
