package wallet

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyPath is an ordered list of BIP32 child indices. Hardened indices carry
// the HardenedKeyStart offset.
type KeyPath []uint32

// ParseKeyPath parses a path such as "1234567/0" or "m/44'/5'/0'/0/3".
// The "m/" prefix is optional and dropped. A trailing ', h or H marks a
// hardened segment.
func ParseKeyPath(text string) (KeyPath, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "m/")
	if text == "" || text == "m" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	segments := strings.Split(text, "/")
	path := make(KeyPath, 0, len(segments))
	for i, seg := range segments {
		index, err := parseSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d %q: %v", ErrInvalidPath, i, seg, err)
		}
		path = append(path, index)
	}

	return path, nil
}

func parseSegment(seg string) (uint32, error) {
	hardened := false
	if n := len(seg); n > 0 {
		switch seg[n-1] {
		case '\'', 'h', 'H':
			hardened = true
			seg = seg[:n-1]
		}
	}

	if seg == "" {
		return 0, fmt.Errorf("empty segment")
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number")
		}
	}
	if len(seg) > 1 && seg[0] == '0' {
		return 0, fmt.Errorf("leading zero")
	}

	n, err := strconv.ParseUint(seg, 10, 32)
	if err != nil || n >= HardenedKeyStart {
		return 0, fmt.Errorf("index out of range")
	}

	index := uint32(n)
	if hardened {
		index += HardenedKeyStart
	}
	return index, nil
}

// String returns the canonical form: no "m/" prefix and ' as the hardened
// marker. "m/44h/5H/0" parses to the same path as "44'/5'/0" and prints as
// the latter; the canonical form round-trips through ParseKeyPath.
func (p KeyPath) String() string {
	var b strings.Builder
	for i, index := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		if index >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(uint64(index-HardenedKeyStart), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(index), 10))
		}
	}
	return b.String()
}

// IsHardened reports whether any segment of the path is hardened.
func (p KeyPath) IsHardened() bool {
	for _, index := range p {
		if index >= HardenedKeyStart {
			return true
		}
	}
	return false
}

// Append returns a new path with more appended after p.
func (p KeyPath) Append(more ...uint32) KeyPath {
	out := make(KeyPath, 0, len(p)+len(more))
	out = append(out, p...)
	return append(out, more...)
}

// DerivePath walks path from n. Any failure aborts the walk and no node is
// returned.
func (n *PrivateNode) DerivePath(path KeyPath) (*PrivateNode, error) {
	node := n
	for _, index := range path {
		child, err := node.Derive(index)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// DerivePath walks path from n. A path with any hardened segment fails with
// ErrHardenedFromPublic before the first step and no node is returned.
func (n *PublicNode) DerivePath(path KeyPath) (*PublicNode, error) {
	if path.IsHardened() {
		return nil, fmt.Errorf("%w: path %s", ErrHardenedFromPublic, path)
	}

	node := n
	for _, index := range path {
		child, err := node.Derive(index)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}
