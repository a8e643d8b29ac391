package broker

import (
	"testing"

	"github.com/newthinker/cta/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestOrderRequest_Validate(t *testing.T) {
	valid := OrderRequest{
		Symbol:    "rb2410",
		Direction: core.DirectionLong,
		Offset:    core.OffsetOpen,
		Price:     3650,
		Volume:    1,
	}

	tests := []struct {
		name   string
		mutate func(r *OrderRequest)
		want   error
	}{
		{"valid", func(r *OrderRequest) {}, nil},
		{"empty symbol", func(r *OrderRequest) { r.Symbol = "" }, ErrInvalidSymbol},
		{"zero volume", func(r *OrderRequest) { r.Volume = 0 }, ErrInvalidVolume},
		{"negative price", func(r *OrderRequest) { r.Price = -1 }, ErrInvalidPrice},
		{"bad direction", func(r *OrderRequest) { r.Direction = "UP" }, ErrInvalidDirection},
		{"bad offset", func(r *OrderRequest) { r.Offset = "" }, ErrInvalidDirection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Equal(t, tt.want, req.Validate())
		})
	}
}
