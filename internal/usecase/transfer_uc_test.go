//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

func newTransferFixture(t *testing.T) (*intakeFixture, *TransferUseCase) {
	t.Helper()
	logger := zerolog.Nop()
	f := newIntakeFixture(t)
	return f, NewTransferUseCase(f.payments, f.uc, &logger)
}

func TestTransferLifecycleApprove(t *testing.T) {
	f, uc := newTransferFixture(t)
	f.seedUser(10)

	p, err := uc.CreateRequest(context.Background(), 10, 1, 50000, "RUB")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if p.Status != model.PaymentStatusAwaitingProvider {
		t.Fatalf("status = %s, want awaiting_provider", p.Status)
	}
	if p.ProviderPaymentID == nil || *p.ProviderPaymentID != "manual:"+p.ID {
		t.Fatal("transfer must carry its synthetic provider payment id")
	}

	out, err := uc.Approve(context.Background(), p.ID, 777)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if out.Duplicate || out.Canceled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	stored, _ := f.payments.FindByID(context.Background(), nil, p.ID)
	if stored.Status != model.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", stored.Status)
	}
	if _, err := f.subs.FindActiveByUser(context.Background(), nil, 10); err != nil {
		t.Fatalf("approval must activate the subscription: %v", err)
	}

	// A second approval is a duplicate, not a second month.
	out, err = uc.Approve(context.Background(), p.ID, 777)
	if err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if !out.Duplicate {
		t.Fatal("second approval must dedupe")
	}
}

func TestTransferReject(t *testing.T) {
	f, uc := newTransferFixture(t)
	f.seedUser(11)

	p, err := uc.CreateRequest(context.Background(), 11, 1, 50000, "RUB")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	out, err := uc.Reject(context.Background(), p.ID, 777)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !out.Canceled {
		t.Fatal("expected Canceled outcome")
	}
	stored, _ := f.payments.FindByID(context.Background(), nil, p.ID)
	if stored.Status != model.PaymentStatusCanceled {
		t.Fatalf("status = %s, want canceled", stored.Status)
	}
}

func TestTransferGuards(t *testing.T) {
	f, uc := newTransferFixture(t)
	f.seedUser(12)

	if _, err := uc.CreateRequest(context.Background(), 0, 1, 100, "RUB"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero user: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := uc.Approve(context.Background(), "missing", 777); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown ledger id: err = %v, want ErrNotFound", err)
	}

	// A non-manual ledger entry cannot be settled through the transfer flow.
	f.seedPayment(&model.Payment{
		ID: "led-card", UserID: 12, Provider: model.ProviderYooKassa,
		Status: model.PaymentStatusAwaitingProvider, Months: 1,
	})
	if _, err := uc.Approve(context.Background(), "led-card", 777); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("non-manual entry: err = %v, want ErrInvalidArgument", err)
	}
}
