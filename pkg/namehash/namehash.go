// Package namehash derives node identifiers for names in the hierarchy.
//
// A node id is keccak256(parent ++ keccak256(label)). The tree itself holds no
// state; callers resolve a path label by label from Zero.
package namehash

import (
	"fmt"
	"strings"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// RootLabel is the label of the top-level namespace.
	RootLabel = "acorn"

	MaxLabelLength = 63
)

var (
	// Zero is the parent of the top-level namespace.
	Zero = common.Hash{}

	// Root is the well-known id of the top-level namespace.
	Root = subnode(Zero, RootLabel)
)

// LabelHash returns keccak256(label).
func LabelHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// NodeID returns the id of label under parent.
func NodeID(parent common.Hash, label string) (common.Hash, error) {
	if err := ValidateLabel(label); err != nil {
		return common.Hash{}, err
	}
	return subnode(parent, label), nil
}

// NameHash resolves a dotted name such as "foo.acorn" from Zero.
func NameHash(name string) (common.Hash, error) {
	if name == "" {
		return Zero, nil
	}
	labels := strings.Split(name, ".")
	node := Zero
	for i := len(labels) - 1; i >= 0; i-- {
		var err error
		if node, err = NodeID(node, labels[i]); err != nil {
			return common.Hash{}, fmt.Errorf("%q: %w", name, err)
		}
	}
	return node, nil
}

// ValidateLabel checks length and the allowed character set: letters, digits
// and hyphens, with no leading or trailing hyphen.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty", model.ErrInvalidLabel)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("%w: longer than %d characters", model.ErrInvalidLabel, MaxLabelLength)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("%w: %q starts or ends with a hyphen", model.ErrInvalidLabel, label)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", model.ErrInvalidLabel, label, c)
		}
	}
	return nil
}

func subnode(parent common.Hash, label string) common.Hash {
	lh := LabelHash(label)
	return crypto.Keccak256Hash(parent[:], lh[:])
}
