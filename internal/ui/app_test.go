package ui

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-client/internal/api"
	"github.com/mmeshcher/delivery-client/internal/controller"
	"github.com/mmeshcher/delivery-client/internal/draft"
	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/view"
)

func TestSplitNotes(t *testing.T) {
	tests := []struct {
		in        string
		wantMain  string
		wantNotes string
	}{
		{"1300 Cecil B. Moore Ave", "1300 Cecil B. Moore Ave", ""},
		{"Chicken Gyro | no onions", "Chicken Gyro", "no onions"},
		{"  spaced  |  trimmed  ", "spaced", "trimmed"},
		{"", "", ""},
	}

	for _, tt := range tests {
		main, notes := splitNotes(tt.in)
		if main != tt.wantMain || notes != tt.wantNotes {
			t.Fatalf("splitNotes(%q) = (%q, %q), want (%q, %q)", tt.in, main, notes, tt.wantMain, tt.wantNotes)
		}
	}
}

func TestParseIndex(t *testing.T) {
	if _, err := parseIndex([]string{"2"}, 1); err == nil {
		t.Fatalf("index past the end must fail")
	}
	if _, err := parseIndex([]string{"0"}, 3); err == nil {
		t.Fatalf("index zero must fail")
	}
	if _, err := parseIndex(nil, 3); err == nil {
		t.Fatalf("missing argument must fail")
	}

	idx, err := parseIndex([]string{"3"}, 3)
	if err != nil {
		t.Fatalf("parseIndex error: %v", err)
	}
	if idx != 2 {
		t.Fatalf("idx = %d, want 2 (zero-based)", idx)
	}
}

func TestRendererCards(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	created := time.Date(2025, 10, 3, 18, 45, 0, 0, time.UTC)
	cards := view.ProjectOrders([]model.Order{
		{
			ID:     "66f1a2b3c4d5e6f7a8b9c0d1",
			Status: model.OrderStatusPending,
			Items: []model.OrderItem{
				{Name: "Chicken Gyro", Quantity: 2, Price: 7.99},
			},
			DeliveryLocation: model.Location{Address: "1300 Cecil B. Moore Ave"},
			DeliveryPoints:   12,
			CreatedAt:        created,
		},
	}, view.ContextAvailable)

	r.Cards("available orders", cards)
	out := buf.String()

	for _, want := range []string{"a8b9c0d1", "PENDING", "12 points", "2x Chicken Gyro", "1300 Cecil B. Moore Ave", "accept"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRendererOrderDetail(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	created := time.Date(2025, 10, 3, 18, 45, 0, 0, time.UTC)
	accepted := time.Date(2025, 10, 3, 19, 2, 0, 0, time.UTC)
	order := model.Order{
		ID:          "66f1a2b3c4d5e6f7a8b9c0d1",
		Status:      model.OrderStatusAccepted,
		DelivererID: "u2",
		Items: []model.OrderItem{
			{Name: "Chicken Gyro", Quantity: 1, Price: 7.99},
		},
		DeliveryLocation: model.Location{Address: "1300 Cecil B. Moore Ave"},
		DeliveryPoints:   11,
		CreatedAt:        created,
		AcceptedAt:       &accepted,
	}
	detail := &controller.OrderDetail{
		Order:         order,
		Establishment: &model.Establishment{Name: "Halal Guys", Location: model.Location{Address: "1201 N Broad St"}},
		Deliverer:     &model.User{ID: "u2", Username: "courier"},
	}

	r.OrderDetail(detail, view.ProjectOrder(order, view.ContextMyOrder))
	out := buf.String()

	for _, want := range []string{"accepted: 2025-10-03 19:02", "from: Halal Guys (1201 N Broad St)", "deliverer: courier"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRendererDraftTotals(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	d := draft.New(&model.Establishment{ID: "e1"})
	if err := d.AddItem("Curry Bowl", 2, 5.00, ""); err != nil {
		t.Fatalf("AddItem error: %v", err)
	}
	if err := d.AddItem("Soft Pretzel", 1, 3.00, ""); err != nil {
		t.Fatalf("AddItem error: %v", err)
	}

	r.Draft(d.Items(), d.Totals())
	out := buf.String()

	if !strings.Contains(out, "subtotal: $13.00, delivery: 11 points") {
		t.Fatalf("totals line missing or wrong:\n%s", out)
	}
}

func TestNotifyErrSeparatesServerAndTransportFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "server reason verbatim",
			err:  fmt.Errorf("accept: %w", &api.Error{StatusCode: 400, Detail: "Order is not available for acceptance"}),
			want: "error: Order is not available for acceptance",
		},
		{
			name: "transport failure is anonymized",
			err:  fmt.Errorf("do request: %w", &url.Error{Op: "Get", URL: "http://localhost:8000/api/orders/my-orders", Err: errors.New("connection refused")}),
			want: "network error, please try again",
		},
		{
			name: "local checks keep their wording",
			err:  errors.New("order has no items"),
			want: "error: order has no items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			a := &App{renderer: NewRenderer(&buf), logger: zap.NewNop()}

			a.notifyErr(tt.err)

			got := strings.TrimSpace(buf.String())
			if got != tt.want {
				t.Fatalf("notice = %q, want %q", got, tt.want)
			}
			if tt.name == "transport failure is anonymized" && strings.Contains(got, "connection refused") {
				t.Fatalf("transport details must not leak into the notice: %q", got)
			}
		})
	}
}

func TestRendererEmptyStates(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Cards("my orders", nil)
	r.Establishments(nil)
	r.User(nil)

	out := buf.String()
	for _, want := range []string{"(empty)", "no establishments found", "not logged in"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
