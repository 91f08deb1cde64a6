package tx

import "testing"

func TestDeployContractRequiresCode(t *testing.T) {
	key := mustKey(t)
	txn := signedTransfer(t, key, "0x1111111111111111111111111111111111111111", 0, 1000, 1)
	txn.Payload = Payload{Kind: DeployContract}
	hash := txn.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	txn.Signature = sig
	if err := txn.Validate(0); err == nil {
		t.Error("deploy_contract with no code should fail validation")
	}
}

func TestCallContractRequiresFunction(t *testing.T) {
	key := mustKey(t)
	txn := signedTransfer(t, key, "0x1111111111111111111111111111111111111111", 0, 1000, 1)
	txn.Payload = Payload{Kind: CallContract, Contract: "0x2222222222222222222222222222222222222222"}
	hash := txn.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	txn.Signature = sig
	if err := txn.Validate(0); err == nil {
		t.Error("call_contract with no function name should fail validation")
	}
}

func TestTransactionTooLarge(t *testing.T) {
	key := mustKey(t)
	txn := signedTransfer(t, key, "0x1111111111111111111111111111111111111111", 1, 1, 1)
	if err := txn.Validate(10); err == nil {
		t.Error("expected oversized transaction to fail validation against a tiny max size")
	}
}

func TestZeroAmountAndFeeRejected(t *testing.T) {
	key := mustKey(t)
	txn := signedTransfer(t, key, "0x1111111111111111111111111111111111111111", 0, 0, 1)
	if err := txn.Validate(0); err == nil {
		t.Error("a transfer with zero amount and zero fee should be rejected")
	}
}
