package resourceadapter

import (
	"testing"

	"github.com/Voskan/flarego/internal/domain"
)

func TestAdaptInternetRequiresV130(t *testing.T) {
	r := domain.Resource{ID: "internet", Type: domain.ResourceInternet}

	if _, v := Adapt(r, ParseVersion("1.2.9")); v != Drop {
		t.Fatalf("expected drop below 1.3.0, got %s", v)
	}
	view, v := Adapt(r, ParseVersion("1.3.0"))
	if v != Cont || view.ID != "internet" || view.Type != "internet" {
		t.Fatalf("expected cont with minimal view, got %#v verdict=%s", view, v)
	}
	if view.Address != "" || view.Name != "" || view.Filters != nil {
		t.Fatalf("expected internet view to carry only id/type, got %#v", view)
	}
}

func TestAdaptCurrentExpandsFilters(t *testing.T) {
	r := domain.Resource{
		ID: "r1", Type: domain.ResourceIP, Name: "db", Address: "10.0.0.5",
		Filters: []domain.Filter{
			{Protocol: domain.ProtoTCP, Ports: []domain.PortRange{{Start: 443, End: 443}, {Start: 8000, End: 8100}}},
			{Protocol: domain.ProtoICMP},
		},
	}
	view, v := Adapt(r, ParseVersion("1.2.0"))
	if v != Cont {
		t.Fatalf("expected cont, got %s", v)
	}
	if view.Address != r.Address {
		t.Fatalf("expected identity over address, got %s", view.Address)
	}
	if len(view.Filters) != 3 {
		t.Fatalf("expected 3 flattened filter entries, got %#v", view.Filters)
	}
	if view.Filters[0].PortRangeStart != 443 || view.Filters[1].PortRangeStart != 8000 {
		t.Fatalf("unexpected filter expansion: %#v", view.Filters)
	}
	if view.Filters[2].Protocol != "icmp" {
		t.Fatalf("expected icmp all-ports entry, got %#v", view.Filters[2])
	}
}

func TestAdaptLegacyGlobRewrite(t *testing.T) {
	r := domain.Resource{ID: "r1", Type: domain.ResourceDNS, Address: "**.example.com"}
	view, v := Adapt(r, ParseVersion("1.1.0"))
	if v != Cont || view.Address != "*.example.com" {
		t.Fatalf("expected leading ** rewritten to *, got %#v verdict=%s", view, v)
	}

	r2 := domain.Resource{ID: "r2", Type: domain.ResourceDNS, Address: "*.baz.com"}
	view2, v2 := Adapt(r2, ParseVersion("1.1.0"))
	if v2 != Cont || view2.Address != "?.baz.com" {
		t.Fatalf("expected leading * rewritten to ?, got %#v verdict=%s", view2, v2)
	}
}

func TestAdaptLegacyDropsUnrepresentableGlobs(t *testing.T) {
	cases := []string{"foo.**.bar", "*.baz.*", "has?mark"}
	for _, addr := range cases {
		r := domain.Resource{ID: "r", Type: domain.ResourceDNS, Address: addr}
		_, v := Adapt(r, ParseVersion("1.1.0"))
		if v != Drop {
			t.Fatalf("expected drop for %q, got %s", addr, v)
		}
	}
}

func TestAdaptLegacyNonDNSPassesAddressThrough(t *testing.T) {
	r := domain.Resource{ID: "r", Type: domain.ResourceCIDR, Address: "10.0.0.0/8"}
	view, v := Adapt(r, ParseVersion("1.0.0"))
	if v != Cont || view.Address != "10.0.0.0/8" {
		t.Fatalf("expected cidr address unchanged, got %#v verdict=%s", view, v)
	}
}
