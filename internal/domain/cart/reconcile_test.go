package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		serverQty int
		liveStock int
		want      Outcome
	}{
		{
			name:      "full grant when stock covers request",
			requested: 3, serverQty: 0, liveStock: 10,
			want: Outcome{ProductID: "p1", Requested: 3, Granted: 3, Remaining: 10, Reason: ReasonFull},
		},
		{
			name:      "full grant against existing server quantity",
			requested: 2, serverQty: 5, liveStock: 10,
			want: Outcome{ProductID: "p1", Requested: 2, Granted: 2, Remaining: 5, Reason: ReasonFull},
		},
		{
			name:      "partial grant when headroom is smaller",
			requested: 5, serverQty: 7, liveStock: 10,
			want: Outcome{ProductID: "p1", Requested: 5, Granted: 3, Remaining: 3, Reason: ReasonPartialStock},
		},
		{
			name:      "nothing granted when server already holds all stock",
			requested: 1, serverQty: 10, liveStock: 10,
			want: Outcome{ProductID: "p1", Requested: 1, Granted: 0, Remaining: 0, Reason: ReasonOutOfStock},
		},
		{
			name:      "nothing granted for zero stock",
			requested: 4, serverQty: 0, liveStock: 0,
			want: Outcome{ProductID: "p1", Requested: 4, Granted: 0, Remaining: 0, Reason: ReasonOutOfStock},
		},
		{
			name:      "server quantity above live stock clamps headroom to zero",
			requested: 2, serverQty: 12, liveStock: 10,
			want: Outcome{ProductID: "p1", Requested: 2, Granted: 0, Remaining: 0, Reason: ReasonOutOfStock},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile("p1", tt.requested, tt.serverQty, tt.liveStock)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The reconciler never grants more than requested nor more than the
// available headroom, for any combination of inputs.
func TestReconcile_Conservation(t *testing.T) {
	for requested := 0; requested <= 6; requested++ {
		for serverQty := 0; serverQty <= 6; serverQty++ {
			for liveStock := 0; liveStock <= 6; liveStock++ {
				out := Reconcile("p1", requested, serverQty, liveStock)

				assert.LessOrEqual(t, out.Granted, requested)
				assert.LessOrEqual(t, serverQty+out.Granted, max(serverQty, liveStock))
				assert.GreaterOrEqual(t, out.Granted, 0)
			}
		}
	}
}

// Same inputs always yield the same outcome.
func TestReconcile_Deterministic(t *testing.T) {
	first := Reconcile("p1", 3, 2, 4)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Reconcile("p1", 3, 2, 4))
	}
}

func TestUnavailable(t *testing.T) {
	out := Unavailable("p9", 5)

	assert.Equal(t, "p9", out.ProductID)
	assert.Equal(t, 5, out.Requested)
	assert.Equal(t, 0, out.Granted)
	assert.Equal(t, ReasonProductUnavailable, out.Reason)
}
