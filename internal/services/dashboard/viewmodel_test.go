package dashboard

import (
	"testing"

	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

func TestBuildEmpty(t *testing.T) {
	vm := Build(nil, nil)
	if len(vm.Points) != 0 || len(vm.Cards) != 0 {
		t.Fatalf("expected no points or cards, got %d/%d", len(vm.Points), len(vm.Cards))
	}
	if vm.Center.Lat != 12.97 || vm.Center.Lon != 77.59 {
		t.Fatalf("center = %+v, want fallback", vm.Center)
	}
	if vm.Zoom != 12 || vm.Radius != 40 {
		t.Fatalf("zoom/radius = %d/%d", vm.Zoom, vm.Radius)
	}
}

func TestBuildCentersOnFirstBin(t *testing.T) {
	bins := []entities.Bin{
		{ID: "a", Latitude: 12.9, Longitude: 77.6, FillLevel: 85, Status: "full"},
		{ID: "b", Latitude: 13.1, Longitude: 77.4, FillLevel: 55},
		{ID: "c", Latitude: 13.2, Longitude: 77.3, FillLevel: 10},
	}
	vm := Build(bins, nil)

	if vm.Center.Lat != 12.9 || vm.Center.Lon != 77.6 {
		t.Fatalf("center = %+v", vm.Center)
	}
	want := []struct {
		key   string
		color entities.RGB
		adv   string
	}{
		{"a", entities.RGB{255, 0, 0}, "FULL – clean ASAP"},
		{"b", entities.RGB{255, 165, 0}, "filling up"},
		{"c", entities.RGB{0, 255, 0}, "normal"},
	}
	for i, w := range want {
		p, c := vm.Points[i], vm.Cards[i]
		if p.Key != w.key || p.Color != w.color {
			t.Errorf("point %d = %+v, want %s %v", i, p, w.key, w.color)
		}
		if c.Key != w.key || c.Advisory != w.adv {
			t.Errorf("card %d = %+v, want %s %q", i, c, w.key, w.adv)
		}
	}
	if vm.Points[0].Lon != 77.6 || vm.Points[0].Lat != 12.9 {
		t.Errorf("point position = %+v", vm.Points[0])
	}
	if !vm.Cards[0].Attention || vm.Cards[2].Attention {
		t.Error("attention flags wrong")
	}
}

func TestBuildListsInvalidRecords(t *testing.T) {
	vm := Build(nil, []*store.DecodeError{{Key: "x", Field: "fill_level", Reason: "missing"}})
	if len(vm.Invalid) != 1 || vm.Invalid[0].Key != "x" {
		t.Fatalf("invalid = %+v", vm.Invalid)
	}
}
