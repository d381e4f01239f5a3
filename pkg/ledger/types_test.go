package ledger

import (
	"errors"
	"testing"
)

func TestIdentifierValidation(test *testing.T) {
	test.Parallel()
	if _, err := NewUserID("  "); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	userID, err := NewUserID("  user_1  ")
	if err != nil || userID.String() != "user_1" {
		test.Fatalf("expected trimmed user id, got %q %v", userID.String(), err)
	}
	provider, err := NewProviderID(" CPX ")
	if err != nil || provider.String() != "cpx" {
		test.Fatalf("expected lowercased provider, got %q %v", provider.String(), err)
	}
	if _, err := NewProviderID("in:brain"); !errors.Is(err, ErrInvalidProviderID) {
		test.Fatalf("expected delimiter rejection, got %v", err)
	}
	if _, err := NewOfferID("a:b"); !errors.Is(err, ErrInvalidOfferID) {
		test.Fatalf("expected delimiter rejection, got %v", err)
	}
}

func TestPointsValidation(test *testing.T) {
	test.Parallel()
	if _, err := NewPositivePoints(0); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := NewPoints(-1); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	points, err := NewPoints(0)
	if err != nil || points.Int64() != 0 {
		test.Fatalf("zero must be a valid balance, got %d %v", points, err)
	}
}

func TestMetadataJSON(test *testing.T) {
	test.Parallel()
	if (MetadataJSON{}).String() != "{}" {
		test.Fatalf("expected empty metadata to render as {}")
	}
	if _, err := NewMetadataJSON("{oops"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
	metadata, err := MetadataFromMap(map[string]string{"method": "paypal"})
	if err != nil || metadata.String() != `{"method":"paypal"}` {
		test.Fatalf("unexpected metadata %q %v", metadata.String(), err)
	}
}

func TestCompletionKey(test *testing.T) {
	test.Parallel()
	key, err := CompletionKey(mustProviderID(test, "Inbrain"), mustOfferID(test, "inbrain_001"), " user_abc ")
	if err != nil {
		test.Fatalf("completion key: %v", err)
	}
	if key.String() != "inbrain:inbrain_001:user_abc" {
		test.Fatalf("unexpected key %q", key.String())
	}
	if _, err := CompletionKey(mustProviderID(test, "inbrain"), mustOfferID(test, "x"), ""); !errors.Is(err, ErrInvalidCompletionID) {
		test.Fatalf("expected ErrInvalidCompletionID, got %v", err)
	}
}

func TestEnumParsing(test *testing.T) {
	test.Parallel()
	method, err := ParseWithdrawalMethod(" Crypto ")
	if err != nil || method != WithdrawalMethodCrypto {
		test.Fatalf("expected crypto, got %q %v", method, err)
	}
	if _, err := ParseWithdrawalMethod("venmo"); !errors.Is(err, ErrInvalidMethod) {
		test.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
	if _, err := ParseWithdrawalOutcome("pending"); !errors.Is(err, ErrInvalidOutcome) {
		test.Fatalf("pending is not an outcome, got %v", err)
	}
	outcome, err := ParseWithdrawalOutcome("REJECTED")
	if err != nil || outcome != WithdrawalStatusRejected {
		test.Fatalf("expected rejected, got %q %v", outcome, err)
	}
	if _, err := ParseCompletionStatus("pending"); !errors.Is(err, ErrInvalidCompletionStatus) {
		test.Fatalf("expected ErrInvalidCompletionStatus, got %v", err)
	}
	if _, err := ParseEntryKind("bonus"); !errors.Is(err, ErrInvalidEntryKind) {
		test.Fatalf("expected ErrInvalidEntryKind, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, steppingClock(0)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}
