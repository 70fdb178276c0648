package kafkahook_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/xraph/credits"
	"github.com/xraph/credits/kafkahook"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

func expectEntry(typ txlog.Type, account string) mocks.ValueChecker {
	return func(val []byte) error {
		var got struct {
			AccountID string     `json:"account_id"`
			Type      txlog.Type `json:"transaction_type"`
			Amount    string     `json:"amount"`
		}
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != typ || got.AccountID != account {
			return fmt.Errorf("got %s for %s, want %s for %s", got.Type, got.AccountID, typ, account)
		}
		return nil
	}
}

func TestPublisherForwardsCommittedEntries(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEntry(txlog.TypePurchase, "acct"))
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEntry(txlog.TypeReserve, "acct"))

	l := credits.New(memory.New(),
		credits.WithSweepInterval(0),
		credits.WithPlugin(kafkahook.New(producer, "")),
	)
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := l.CreatePackage(ctx, &purchase.Package{
		Code: "basic", Name: "Basic", Credits: types.Credits(100), Price: types.USD("5.00"), Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := l.InitiatePurchase(ctx, credits.PurchaseInput{AccountID: "acct", PackageCode: "basic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.CompletePurchase(ctx, p.ID, "gw"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reserve(ctx, credits.ReserveInput{AccountID: "acct", Amount: types.Credits(10)}); err != nil {
		t.Fatal(err)
	}
	// Rejected operations write nothing and publish nothing.
	if _, err := l.Reserve(ctx, credits.ReserveInput{AccountID: "acct", Amount: types.Credits(1000)}); !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}

	// Stop closes the producer, which fails the test on unmet expectations.
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestPublisherBatchesOneUnit(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEntry(txlog.TypeAllocate, "parent"))
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEntry(txlog.TypeAllocate, "child"))
	defer producer.Close()

	pub := kafkahook.New(producer, "topic")
	err := pub.OnEntriesAppended(context.Background(), []*txlog.Entry{
		{AccountID: "parent", Type: txlog.TypeAllocate, Amount: types.Credits(5)},
		{AccountID: "child", Type: txlog.TypeAllocate, Amount: types.Credits(5)},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPublisherReportsFailures(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	defer producer.Close()

	pub := kafkahook.New(producer, "topic")
	err := pub.OnEntriesAppended(context.Background(), []*txlog.Entry{
		{AccountID: "acct", Type: txlog.TypeRelease, Amount: types.Credits(1)},
	})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("err = %v, want ErrOutOfBrokers", err)
	}
	if err := pub.OnEntriesAppended(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
