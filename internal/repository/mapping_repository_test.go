package repository

import (
	"context"
	"testing"
	"time"

	"github.com/paypro-bridge/internal/constants"
	"github.com/paypro-bridge/internal/models"
)

func newTestMapping() *models.OrderMapping {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.OrderMapping{
		InternalOrderID:      "A1",
		GatewayPaymentID:     "PP-100",
		InternalDocumentPath: "artifacts/app/users/u1/orders/doc1",
		Amount:               501,
		Customer:             models.Customer{Name: "Ali", Email: "c@x.com", Phone: "0300"},
		RedirectURL:          "https://pay.example/PP-100",
		Status:               constants.MappingStatusInitiated,
		Provider:             constants.PaymentProviderPayPro,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestMappingRepositoryUpsertAndLookup(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "", "")
	ctx := context.Background()

	if err := repo.UpsertInitiated(ctx, newTestMapping()); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	byOrder, err := repo.FindByOrderID(ctx, "A1")
	if err != nil || byOrder == nil {
		t.Fatalf("find by order failed: %v %v", byOrder, err)
	}
	if byOrder.GatewayPaymentID != "PP-100" || byOrder.Amount != 501 || byOrder.Customer.Email != "c@x.com" {
		t.Fatalf("unexpected mapping: %+v", byOrder)
	}

	byGateway, err := repo.FindByGatewayID(ctx, "PP-100")
	if err != nil || byGateway == nil {
		t.Fatalf("find by gateway failed: %v %v", byGateway, err)
	}
	if byGateway.InternalOrderID != "A1" {
		t.Fatalf("unexpected mapping: %+v", byGateway)
	}

	missing, err := repo.FindByGatewayID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing should be nil,nil got=%v err=%v", missing, err)
	}
}

func TestMappingRepositoryFindByGatewayFallsBackToPrimary(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "paypro_orders", "paypro_payments")
	ctx := context.Background()

	legacy := newTestMapping()
	body, err := legacy.ToJSON()
	if err != nil {
		t.Fatalf("to json failed: %v", err)
	}
	// written before the secondary index existed
	if err := store.Set(ctx, "paypro_orders", "A1", body, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := repo.FindByGatewayID(ctx, "PP-100")
	if err != nil || got == nil || got.InternalOrderID != "A1" {
		t.Fatalf("expected fallback by stored gateway id, got=%v err=%v", got, err)
	}

	// keyed by the gateway id in the primary collection
	if err := store.Set(ctx, "paypro_orders", "PP-200", models.JSON{"internalOrderId": "B1", "status": "initiated"}, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	got, err = repo.FindByGatewayID(ctx, "PP-200")
	if err != nil || got == nil || got.InternalOrderID != "B1" {
		t.Fatalf("expected fallback by primary key, got=%v err=%v", got, err)
	}
}

func TestMappingRepositoryMarkPaidWritesAllDocuments(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "", "")
	ctx := context.Background()
	mapping := newTestMapping()

	if err := store.SetPath(ctx, mapping.InternalDocumentPath, models.JSON{"total": 501, "status": "pending"}, true); err != nil {
		t.Fatalf("seed external doc failed: %v", err)
	}
	if err := repo.UpsertInitiated(ctx, mapping); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	paidAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if err := repo.MarkPaid(ctx, mapping, "00", constants.PaidSourceCallback, paidAt); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	// a replay later must not move paidAt
	if err := repo.MarkPaid(ctx, mapping, "00", constants.PaidSourcePoll, paidAt.Add(time.Hour)); err != nil {
		t.Fatalf("mark paid replay failed: %v", err)
	}

	for _, lookup := range []func() (*models.OrderMapping, error){
		func() (*models.OrderMapping, error) { return repo.FindByOrderID(ctx, "A1") },
		func() (*models.OrderMapping, error) { return repo.FindByGatewayID(ctx, "PP-100") },
	} {
		got, err := lookup()
		if err != nil || got == nil {
			t.Fatalf("lookup failed: %v %v", got, err)
		}
		if got.Status != constants.MappingStatusPaid || got.GatewayStatus != "00" {
			t.Fatalf("unexpected paid mapping: %+v", got)
		}
		if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
			t.Fatalf("paidAt should stay at first transition, got %v", got.PaidAt)
		}
		if got.Amount != 501 {
			t.Fatalf("amount must not change, got %d", got.Amount)
		}
	}

	external, err := repo.LoadOrderDocument(ctx, mapping)
	if err != nil {
		t.Fatalf("load external failed: %v", err)
	}
	payment, _ := external["payment"].(map[string]interface{})
	if external["status"] != "paid" || external["total"] != float64(501) || payment["status"] != "paid" || payment["gatewayPaymentId"] != "PP-100" {
		t.Fatalf("unexpected external document: %#v", external)
	}
}

func TestMappingRepositoryReceiptAndCallbackStamps(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "", "")
	ctx := context.Background()
	mapping := newTestMapping()
	if err := repo.UpsertInitiated(ctx, mapping); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := repo.TouchCallback(ctx, mapping, at); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if err := repo.MarkReceiptSent(ctx, mapping, at); err != nil {
		t.Fatalf("mark receipt failed: %v", err)
	}
	got, err := repo.FindByGatewayID(ctx, "PP-100")
	if err != nil || got == nil {
		t.Fatalf("lookup failed: %v %v", got, err)
	}
	if !got.ReceiptSent || got.ReceiptSentAt == nil || got.LastCallbackAt == nil || !got.LastCallbackAt.Equal(at) {
		t.Fatalf("unexpected stamps: %+v", got)
	}
}

func TestMappingRepositoryAttachInitiation(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "", "")
	ctx := context.Background()
	mapping := newTestMapping()

	if err := repo.AttachInitiation(ctx, mapping); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	doc, err := repo.LoadOrderDocument(ctx, mapping)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	payment, _ := doc["payment"].(map[string]interface{})
	if payment["status"] != "initiated" || payment["redirectUrl"] != "https://pay.example/PP-100" {
		t.Fatalf("unexpected initiation marker: %#v", doc)
	}
}

func TestMappingRepositoryStaleTouchKeepsPaidState(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "paypro_orders", "paypro_payments")
	ctx := context.Background()
	if err := repo.UpsertInitiated(ctx, newTestMapping()); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	stale, err := repo.FindByGatewayID(ctx, "PP-100")
	if err != nil || stale == nil {
		t.Fatalf("lookup failed: %v %v", stale, err)
	}
	fresh, _ := repo.FindByOrderID(ctx, "A1")
	paidAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if err := repo.MarkPaid(ctx, fresh, "00", constants.PaidSourcePoll, paidAt); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if err := repo.MarkReceiptSent(ctx, fresh, paidAt); err != nil {
		t.Fatalf("mark receipt failed: %v", err)
	}

	if err := repo.TouchCallback(ctx, stale, paidAt.Add(time.Minute)); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	for _, collection := range []string{"paypro_orders", "paypro_payments"} {
		key := "A1"
		if collection == "paypro_payments" {
			key = "PP-100"
		}
		doc, err := store.Get(ctx, collection, key)
		if err != nil || doc == nil {
			t.Fatalf("%s read failed: %v %v", collection, doc, err)
		}
		if doc["status"] != constants.MappingStatusPaid || doc["receiptSent"] != true {
			t.Fatalf("%s regressed: status=%v receiptSent=%v", collection, doc["status"], doc["receiptSent"])
		}
		if doc["lastCallbackAt"] == nil {
			t.Fatalf("%s missing lastCallbackAt", collection)
		}
	}

	got, err := repo.FindByGatewayID(ctx, "PP-100")
	if err != nil || got == nil || got.Status != constants.MappingStatusPaid {
		t.Fatalf("lookup by gateway id should report paid, got=%+v err=%v", got, err)
	}
}

func TestMappingRepositoryRebuildsMissingSecondaryFromPrimary(t *testing.T) {
	store := setupDocumentStoreTest(t)
	repo := NewMappingRepository(store, "paypro_orders", "paypro_payments")
	ctx := context.Background()

	paid := newTestMapping()
	paid.Status = constants.MappingStatusPaid
	body, _ := paid.ToJSON()
	if err := store.Set(ctx, "paypro_orders", "A1", body, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	stale := newTestMapping()
	if err := repo.TouchCallback(ctx, stale, time.Now()); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	doc, err := store.Get(ctx, "paypro_payments", "PP-100")
	if err != nil || doc == nil {
		t.Fatalf("secondary not rebuilt: %v %v", doc, err)
	}
	if doc["status"] != constants.MappingStatusPaid || doc["internalOrderId"] != "A1" {
		t.Fatalf("secondary rebuilt from stale copy: %v", doc)
	}
}
