package signature_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/minicoin/minicoin/foundation/blockchain/signature"
)

const (
	success = "\u2713"
	failed  = "\u2717"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// data represents what will be signed in the tests.
type data struct {
	Name string
	Num  int
}

func Test_SignRecover(t *testing.T) {
	value := data{Name: "bill", Num: 10}

	t.Log("Given the need to sign values and recover the signing key.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a single value.", testID)
		{
			pk, err := crypto.HexToECDSA(pkHexKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to parse the private key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to parse the private key.", success, testID)

			v, r, s, err := signature.Sign(value, pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the data: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to sign the data.", success, testID)

			if err := signature.VerifySignature(v, r, s); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to verify the signature: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to verify the signature.", success, testID)

			publicKey, err := signature.RecoverPublicKey(value, v, r, s)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to recover the public key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to recover the public key.", success, testID)

			if crypto.PubkeyToAddress(*publicKey) != crypto.PubkeyToAddress(pk.PublicKey) {
				t.Fatalf("\t%s\tTest %d:\tShould recover the key that signed.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould recover the key that signed.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the value is mutated after signing.", testID)
		{
			pk, err := crypto.HexToECDSA(pkHexKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to parse the private key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to parse the private key.", success, testID)

			v, r, s, err := signature.Sign(value, pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the data: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to sign the data.", success, testID)

			mutated := data{Name: "bill", Num: 11}
			publicKey, err := signature.RecoverPublicKey(mutated, v, r, s)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould still recover a public key: %v", failed, testID, err)
			}

			if crypto.PubkeyToAddress(*publicKey) == crypto.PubkeyToAddress(pk.PublicKey) {
				t.Fatalf("\t%s\tTest %d:\tShould not recover the signing key for mutated data.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not recover the signing key for mutated data.", success, testID)
		}
	}
}

func Test_Hash(t *testing.T) {
	value := data{Name: "bill", Num: 10}

	t.Log("Given the need to create a hash for a value.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling the same value twice.", testID)
		{
			h1 := signature.Hash(value)
			h2 := signature.Hash(value)

			if h1 != h2 {
				t.Fatalf("\t%s\tTest %d:\tShould produce the same hash twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce the same hash twice.", success, testID)

			if len(h1) != 66 || h1[:2] != "0x" {
				t.Fatalf("\t%s\tTest %d:\tShould produce a 0x prefixed 32 byte hex hash: %s", failed, testID, h1)
			}
			t.Logf("\t%s\tTest %d:\tShould produce a 0x prefixed 32 byte hex hash.", success, testID)

			if h1 == signature.ZeroHash {
				t.Fatalf("\t%s\tTest %d:\tShould not produce the zero hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not produce the zero hash.", success, testID)
		}
	}
}
