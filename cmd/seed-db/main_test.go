package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
	"restaurants": [{
		"id": "luigis",
		"tenantId": "demo",
		"name": "Luigi's",
		"deliveryFee": "3.50",
		"prepMinutes": 25,
		"menu": [
			{"id": "margherita", "name": "Margherita", "category": "Pizza", "price": "9.00",
			 "variants": [{"id": "large", "group": "Size", "name": "Large", "price_delta": "3.00"}]},
			{"id": "cola", "name": "Cola", "category": "Drinks", "price": 2}
		]
	}]
}`

func TestDecodeCatalog(t *testing.T) {
	cat, err := decodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	require.Len(t, cat.Restaurants, 1)
	r := cat.Restaurants[0]
	assert.Equal(t, "demo", r.TenantID)
	assert.Equal(t, "3.5", r.DeliveryFee.String())
	require.Len(t, r.Menu, 2)
	require.Len(t, r.Menu[0].Variants, 1)
	assert.Equal(t, "3", r.Menu[0].Variants[0].PriceDelta.String())
	assert.Equal(t, "2", r.Menu[1].Price.String())
}

func TestDecodeCatalog_Invalid(t *testing.T) {
	_, err := decodeCatalog(strings.NewReader(`{"restaurants":[{"id":"x"}]}`))
	require.ErrorContains(t, err, "tenantId")

	_, err = decodeCatalog(strings.NewReader(`{"restaurants":[{"id":"x","tenantId":"t","menu":[{"id":"m","price":"-1"}]}]}`))
	require.ErrorContains(t, err, "negative price")
}

func TestReadCatalog_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sampleCatalog))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	cat, err := readCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Restaurants, 1)
}
