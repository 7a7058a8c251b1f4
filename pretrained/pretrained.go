// Package pretrained translates MoCo v2 checkpoints into the
// backbone/contrastive-head layout of a pretext model.
//
// Loading tensors is left to the caller: any model that accepts a state
// dict implements WeightLoader.
package pretrained

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Key prefixes of the MoCo query encoder and the pretext model.
const (
	EncoderPrefix  = "module.encoder_q."
	FCPrefix       = "module.encoder_q.fc."
	BackbonePrefix = "module.backbone."
	HeadPrefix     = "module.contrastive_head."
)

var (
	// ErrUnexpectedKey is returned for checkpoint keys outside the query encoder.
	ErrUnexpectedKey = errors.New("pretrained: unexpected key")

	// ErrDuplicateKey is returned when two source keys map to the same target.
	ErrDuplicateKey = errors.New("pretrained: duplicate target key")
)

// WeightLoader accepts a translated state dict.
type WeightLoader[V any] interface {
	LoadStateDict(ctx context.Context, state map[string]V) error
}

// LoaderFunc adapts a function to WeightLoader.
type LoaderFunc[V any] func(ctx context.Context, state map[string]V) error

// LoadStateDict implements WeightLoader.
func (f LoaderFunc[V]) LoadStateDict(ctx context.Context, state map[string]V) error {
	return f(ctx, state)
}

// isBackbone reports whether key belongs to the convolutional trunk.
func isBackbone(key string) bool {
	return strings.Contains(key, "conv") || strings.Contains(key, "bn") || strings.Contains(key, "layer")
}

// TranslateKey maps one MoCo checkpoint key to its pretext model name.
// Keys naming conv, bn or layer parameters move under BackbonePrefix;
// the remaining fc parameters move under HeadPrefix.
func TranslateKey(key string) (string, error) {
	if isBackbone(key) {
		_, rest, ok := strings.Cut(key, EncoderPrefix)
		if !ok || rest == "" {
			return "", fmt.Errorf("%w %q", ErrUnexpectedKey, key)
		}
		return BackbonePrefix + rest, nil
	}

	_, rest, ok := strings.Cut(key, FCPrefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("%w %q", ErrUnexpectedKey, key)
	}
	return HeadPrefix + rest, nil
}

// TranslateMoCoKeys renames every entry of a MoCo v2 state dict. Values
// are carried over untouched. Keys are processed in sorted order so the
// first reported error is stable.
func TranslateMoCoKeys[V any](state map[string]V) (map[string]V, error) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]V, len(state))
	for _, k := range keys {
		nk, err := TranslateKey(k)
		if err != nil {
			return nil, err
		}
		if _, dup := out[nk]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateKey, nk)
		}
		out[nk] = state[k]
	}
	return out, nil
}

// Transfer translates state and hands it to dst.
func Transfer[V any](ctx context.Context, state map[string]V, dst WeightLoader[V]) error {
	translated, err := TranslateMoCoKeys(state)
	if err != nil {
		return err
	}
	if err := dst.LoadStateDict(ctx, translated); err != nil {
		return fmt.Errorf("pretrained: load state dict: %w", err)
	}
	return nil
}
