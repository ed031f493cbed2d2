// internal/gatewaychannel/rowdiff.go
// Thin aliases onto internal/changerow so the rest of this package reads
// naturally; the decoding logic itself is shared with clientchannel.
package gatewaychannel

import (
	"github.com/Voskan/flarego/internal/changerow"
	"github.com/Voskan/flarego/internal/domain"
)

func rowFieldDiffers(old, new map[string]any, key string) bool {
	return changerow.FieldDiffers(old, new, key)
}

func addressingChanged(old, new map[string]any) bool {
	return changerow.AddressingChanged(old, new)
}

func resourceFromRow(row map[string]any) (domain.Resource, bool) {
	return changerow.ResourceFromRow(row)
}
