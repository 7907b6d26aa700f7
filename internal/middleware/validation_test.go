package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCheckoutRequest struct {
	Name    string `json:"buyer_name" validate:"required,max=100"`
	Phone   string `json:"buyer_phone" validate:"required,min=6,max=20"`
	Address string `json:"buyer_address" validate:"required"`
}

type testCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,ne=0,gte=-1000,lte=1000"`
}

func decodeBody(t *testing.T, body interface{}, v interface{}) error {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/orders/checkout", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return DecodeAndValidate(req, v)
}

// Feature: order-fulfillment, Property 19: Required field validation works
func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(includeName, includePhone, includeAddress bool) bool {
			body := map[string]interface{}{}
			if includeName {
				body["buyer_name"] = "Budi"
			}
			if includePhone {
				body["buyer_phone"] = "08123456789"
			}
			if includeAddress {
				body["buyer_address"] = "Jl. Merdeka 1"
			}

			var req testCheckoutRequest
			err := decodeBody(t, body, &req)

			if includeName && includePhone && includeAddress {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_QuantityDeltaValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-zero deltas within bounds pass", prop.ForAll(
		func(quantity int) bool {
			var req testCartItemRequest
			err := decodeBody(t, map[string]interface{}{
				"product_id": uuid.NewString(),
				"quantity":   quantity,
			}, &req)

			valid := quantity != 0 && quantity >= -1000 && quantity <= 1000
			return (err == nil) == valid
		},
		gen.IntRange(-1500, 1500),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrors_UsesJSONNames(t *testing.T) {
	var req testCartItemRequest
	err := decodeBody(t, map[string]interface{}{"product_id": "not-a-uuid", "quantity": 3}, &req)
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	require.Len(t, formatted, 1)
	assert.Equal(t, "product_id", formatted[0].Field)
	assert.Equal(t, "Invalid UUID", formatted[0].Message)
}

func TestDecodeAndValidate_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","quantity":1,"price":1}`))

	var body testCartItemRequest
	err := DecodeAndValidate(req, &body)
	require.Error(t, err)
	assert.Empty(t, FormatValidationErrors(err))
}
