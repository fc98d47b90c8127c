package model

import (
	"errors"
	"testing"
)

func TestNewOrderComputesTotal(t *testing.T) {
	tests := []struct {
		tier     Tier
		quantity int
		want     int64
	}{
		{TierDay, 2, 20000},
		{TierWeek, 1, 50000},
		{TierMonth, 3, 450000},
	}

	for _, tt := range tests {
		o, err := NewOrder("id", "user", tt.tier, tt.quantity)
		if err != nil {
			t.Fatalf("NewOrder(%s, %d): %v", tt.tier, tt.quantity, err)
		}
		if o.Total != tt.want {
			t.Errorf("NewOrder(%s, %d).Total = %d, want %d", tt.tier, tt.quantity, o.Total, tt.want)
		}
		if o.Status != StatusPending {
			t.Errorf("status = %s, want pending", o.Status)
		}
	}
}

func TestNewOrderRejectsBadInput(t *testing.T) {
	if _, err := NewOrder("id", "u", TierDay, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("quantity 0: got %v", err)
	}
	if _, err := NewOrder("id", "u", TierDay, -4); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("quantity -4: got %v", err)
	}
	if _, err := NewOrder("id", "u", Tier("year"), 1); !errors.Is(err, ErrInvalidTier) {
		t.Errorf("tier year: got %v", err)
	}
}

func TestOrderTransitions(t *testing.T) {
	o, _ := NewOrder("id", "u", TierDay, 1)

	if err := o.MarkDelivered(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("deliver pending: got %v", err)
	}
	if err := o.MarkPaid([]string{"K1"}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if err := o.MarkPaid([]string{"K2"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second MarkPaid: got %v", err)
	}
	if err := o.Expire(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expire paid: got %v", err)
	}
	if err := o.MarkDelivered(); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(o.Keys) != 1 || o.Keys[0] != "K1" {
		t.Errorf("keys = %v, want [K1]", o.Keys)
	}

	e, _ := NewOrder("id2", "u", TierWeek, 1)
	if err := e.Expire(); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if err := e.MarkPaid(nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pay expired: got %v", err)
	}
}

func TestOrderMatches(t *testing.T) {
	o, _ := NewOrder("abc", "u", TierWeek, 1)

	if !o.Matches("abc", 50000) {
		t.Error("exact match rejected")
	}
	if o.Matches("abc", 49000) {
		t.Error("short amount accepted")
	}
	if o.Matches("ABC", 50000) {
		t.Error("different note accepted")
	}
	_ = o.MarkPaid(nil)
	if o.Matches("abc", 50000) {
		t.Error("paid order matched again")
	}
}

func TestCloneDoesNotShareKeys(t *testing.T) {
	o, _ := NewOrder("id", "u", TierDay, 1)
	_ = o.MarkPaid([]string{"K1"})

	c := o.Clone()
	c.Keys[0] = "changed"
	if o.Keys[0] != "K1" {
		t.Errorf("clone mutated original keys: %v", o.Keys)
	}
}
