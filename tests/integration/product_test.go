//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != 9 {
		t.Fatalf("expected 9 products, got %d", len(products))
	}

	byID := make(map[string]productResponse, len(products))
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			t.Errorf("product with empty id or name: %+v", p)
		}
		if p.Price <= 0 {
			t.Errorf("product %s has non-positive price %f", p.ID, p.Price)
		}
		byID[p.ID] = p
	}

	// Catalog exposes live stock, including the sold-out inactive item.
	if p, ok := byID["panna-cotta"]; !ok {
		t.Error("expected panna-cotta in catalog")
	} else if p.Active || p.Stock != 0 {
		t.Errorf("expected panna-cotta inactive with zero stock, got %+v", p)
	}
}
