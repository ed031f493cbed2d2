// internal/changerow/row.go
// Package changerow decodes the generic map[string]any rows the Change
// Stream carries (§6's "names indicative" schema) into domain types, shared
// by gatewaychannel and clientchannel so both sides of a resource update
// agree on the same column names.
package changerow

import (
	"reflect"

	"github.com/Voskan/flarego/internal/domain"
)

func Str(row map[string]any, key string) string {
	v, _ := row[key].(string)
	return v
}

func Num(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// FieldDiffers reports whether old and new disagree on key. A key absent
// from both is not a difference.
func FieldDiffers(old, new map[string]any, key string) bool {
	return !reflect.DeepEqual(old[key], new[key])
}

// AddressingChanged reports whether any field affecting a Resource's
// addressability changed, per §4.5 reaction #2.
func AddressingChanged(old, new map[string]any) bool {
	return FieldDiffers(old, new, "address") ||
		FieldDiffers(old, new, "type") ||
		FieldDiffers(old, new, "ip_stack")
}

// ResourceFromRow decodes a `resources` row into a domain.Resource. ok is
// false if the row lacks an id.
func ResourceFromRow(row map[string]any) (domain.Resource, bool) {
	id := Str(row, "id")
	if id == "" {
		return domain.Resource{}, false
	}
	r := domain.Resource{
		ID:        id,
		AccountID: Str(row, "account_id"),
		Type:      domain.ResourceType(Str(row, "type")),
		Name:      Str(row, "name"),
		Address:   Str(row, "address"),
		IPStack:   domain.IPStack(Str(row, "ip_stack")),
	}
	rawFilters, _ := row["filters"].([]any)
	for _, rf := range rawFilters {
		fm, ok := rf.(map[string]any)
		if !ok {
			continue
		}
		f := domain.Filter{Protocol: domain.Protocol(Str(fm, "protocol"))}
		rawPorts, _ := fm["ports"].([]any)
		for _, rp := range rawPorts {
			pm, ok := rp.(map[string]any)
			if !ok {
				continue
			}
			f.Ports = append(f.Ports, domain.PortRange{
				Start: uint16(Num(pm, "start")),
				End:   uint16(Num(pm, "end")),
			})
		}
		r.Filters = append(r.Filters, f)
	}
	return r, true
}

// MembershipFromRow decodes a `memberships` row, used by clientchannel to
// re-evaluate authorization without a direct database dependency.
func MembershipFromRow(row map[string]any) (domain.Membership, bool) {
	id := Str(row, "id")
	if id == "" {
		return domain.Membership{}, false
	}
	return domain.Membership{
		ID:        id,
		AccountID: Str(row, "account_id"),
		GroupID:   Str(row, "group_id"),
		ActorID:   Str(row, "actor_id"),
	}, true
}
