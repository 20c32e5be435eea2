package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klingon-exchange/dashwallet/internal/wallet"
)

// Test mnemonic (DO NOT USE FOR REAL FUNDS)
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const testRootTPub = "tpubD6NzVbkrYhZ4XYa9MoLt4BiMZ4gkt2faZ4BcmKu2a9te4LDpQmvEz2L2yDERivHxFPnxXXhqDRkUNnQCpZggCyEZLBktV7VaSmwayqMJy1s"

// run executes the CLI with args against a fresh data directory.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runIn(t, t.TempDir(), stdin, args...)
}

func runIn(t *testing.T, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestMnemonicCommand(t *testing.T) {
	out, err := run(t, "", "mnemonic", "--words", "24")
	if err != nil {
		t.Fatalf("mnemonic error = %v", err)
	}

	mnemonic := strings.TrimSpace(out)
	if len(strings.Fields(mnemonic)) != 24 {
		t.Errorf("expected 24 words, got %q", mnemonic)
	}
	if !wallet.ValidateMnemonic(mnemonic) {
		t.Error("generated mnemonic is invalid")
	}

	if _, err := run(t, "", "mnemonic", "--words", "11"); err == nil {
		t.Error("expected error for 11 words")
	}
}

func TestMnemonicCheck(t *testing.T) {
	out, err := run(t, testMnemonic+"\n", "mnemonic", "--check")
	if err != nil {
		t.Fatalf("mnemonic --check error = %v", err)
	}
	if strings.TrimSpace(out) != "valid" {
		t.Errorf("output = %q, want valid", out)
	}

	_, err = run(t, "abandon abandon abandon\n", "mnemonic", "--check")
	if !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("error = %v, want ErrInvalidMnemonic", err)
	}
}

func TestXPubCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"testnet root", []string{"xpub", "--testnet"}, testRootTPub},
		{"testnet root m", []string{"xpub", "m", "--testnet"}, testRootTPub},
		{"mainnet bip44 account", []string{"xpub", "--bip44"}, "xpub6CYEjsU6zPM3sADS2ubu2aZeGxCm3C5KabkCpo4rkNbXGAH9M7rRUJ4E5CKiyUddmRzrSCopPzisTBrXkfCD4o577XKM9mzyZtP1Xdbizyk"},
		{"testnet bip44 account", []string{"xpub", "--bip44", "--testnet"}, "tpubDC5FSnBiZDMmhiuCmWAYsLwgLYrrT9rAqvTySfuCCrgsWz8wxMXUS9Tb9iVMvcRbvFcAHGkMD5Kx8koh4GquNGNTfohfk7pgjhaPCdXpoba"},
		{"customer branch", []string{"xpub", "1234567", "--testnet"}, "tpubD97UxEEMCL2GVbNowjmbWdDH3FAQiYUCS7ahFXDfEQGPz9kWvx9Bf8Cay2DxZeiiMXGq3G5jhwHcmjdSTP3nUYTx1U2nfmVGfsFLMTi1etF"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, testMnemonic+"\n", tc.args...)
			if err != nil {
				t.Fatalf("xpub error = %v", err)
			}
			if got := strings.TrimSpace(out); got != tc.want {
				t.Errorf("xpub = %s, want %s", got, tc.want)
			}
		})
	}

	if _, err := run(t, "", "xpub", "--testnet"); err == nil {
		t.Error("expected error without a mnemonic")
	}
}

func TestDeriveCommand(t *testing.T) {
	t.Run("from mnemonic", func(t *testing.T) {
		out, err := run(t, testMnemonic+"\n", "derive", "m/1234567/0", "--testnet", "--show-key")
		if err != nil {
			t.Fatalf("derive error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %q", out)
		}
		if lines[0] != "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6" {
			t.Errorf("address = %s", lines[0])
		}
		if !strings.HasSuffix(lines[2], "cSJgpbyBDucyYt6EiAEU1c1XwTWwdhoqLiVkgXXphCR35WCncmtQ") {
			t.Errorf("wif line = %s", lines[2])
		}
	})

	t.Run("mainnet bip44", func(t *testing.T) {
		out, err := run(t, testMnemonic+"\n", "derive", "44'/5'/0'/0/0")
		if err != nil {
			t.Fatalf("derive error = %v", err)
		}
		if got := strings.TrimSpace(out); got != "XoJA8qE3N2Y3jMLEtZ3vcN42qseZ8LvFf5" {
			t.Errorf("address = %s", got)
		}
	})

	t.Run("from xpub", func(t *testing.T) {
		out, err := run(t, "", "derive", "1234567/1", "--xpub", testRootTPub, "--testnet")
		if err != nil {
			t.Fatalf("derive error = %v", err)
		}
		if got := strings.TrimSpace(out); got != "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB" {
			t.Errorf("address = %s", got)
		}
	})

	t.Run("hardened from xpub", func(t *testing.T) {
		_, err := run(t, "", "derive", "1234567'/1", "--xpub", testRootTPub, "--testnet")
		if !errors.Is(err, wallet.ErrHardenedFromPublic) {
			t.Errorf("error = %v, want ErrHardenedFromPublic", err)
		}
	})

	t.Run("xpub on wrong network", func(t *testing.T) {
		_, err := run(t, "", "derive", "0", "--xpub", testRootTPub)
		if !errors.Is(err, wallet.ErrWrongNetwork) {
			t.Errorf("error = %v, want ErrWrongNetwork", err)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := run(t, "", "derive", "01/x", "--xpub", testRootTPub, "--testnet")
		if !errors.Is(err, wallet.ErrInvalidPath) {
			t.Errorf("error = %v, want ErrInvalidPath", err)
		}
	})
}

func TestParamsCommand(t *testing.T) {
	out, err := run(t, "", "params", "--testnet", "--seeds", "--verify-genesis")
	if err != nil {
		t.Fatalf("params error = %v", err)
	}

	for _, want := range []string{
		"name: dash-test",
		"pubkey_hash_addr_id: 140",
		"script_hash_addr_id: 19",
		"private_key_id: 239",
		"hd_public_key_id: 043587cf",
		"rpc_port: 19998",
		"genesis_hash: 00000bafbc94add76cb75e2ec92894837288a481e5c005f6563d91623bf8bc2c",
		"genesis_merkle_root: e0028eb9648db56b1ac77cf090b99048a8007e2bb64b68f092c03c7f56a662c7",
		"genesis_pow_hash:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("params output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCreatedOnFirstRun(t *testing.T) {
	dataDir := t.TempDir()
	if _, err := runIn(t, dataDir, "", "params", "--testnet"); err != nil {
		t.Fatalf("params error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "testnet", "config.yaml")); err != nil {
		t.Errorf("config not created: %v", err)
	}
}

func TestSendArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no amount", []string{"send", "1234567/0", "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB", "--testnet"}},
		{"amount with sweep", []string{"send", "1234567/0", "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB", "1", "--sweep", "--testnet"}},
		{"bad amount", []string{"send", "1234567/0", "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB", "1.000000001", "--testnet"}},
		{"bad path", []string{"send", "x", "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB", "1", "--testnet"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := run(t, testMnemonic+"\n", tc.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// nodeServer is a minimal Dash Core RPC endpoint on testnet.
func nodeServer(t *testing.T, imported *atomic.Int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result interface{}
		switch req.Method {
		case "getblockchaininfo":
			result = map[string]interface{}{"chain": "test", "blocks": 1000}
		case "importaddress":
			imported.Add(1)
		default:
			t.Errorf("unexpected node call %s", req.Method)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": result,
			"error":  nil,
			"id":     req.ID,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestWatchCommand(t *testing.T) {
	var imported atomic.Int32
	node := nodeServer(t, &imported)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(configPath, []byte("network: testnet\nnode:\n  url: "+node.URL+"\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, err := runIn(t, dir, "", "--config", configPath, "watch", testRootTPub, "1234567/0", "--label", "Customer 1234567")
	if err != nil {
		t.Fatalf("watch error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6" {
		t.Errorf("watch = %s", got)
	}
	if imported.Load() != 1 {
		t.Errorf("importaddress calls = %d, want 1", imported.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "dashwallet.db")); err != nil {
		t.Errorf("ledger not created: %v", err)
	}
}

func TestPrintSigned(t *testing.T) {
	var buf bytes.Buffer
	printSigned(&buf, &wallet.SignedTx{
		TxID:        "abc",
		Source:      "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6",
		Destination: "ybGEzMtxqk4Y9pznK5LMK5st829LNvdfxB",
		Inputs:      2,
		InputTotal:  30000000,
		Amount:      29000000,
		Fee:         1000000,
	})

	out := buf.String()
	for _, want := range []string{
		"inputs:      2 (0.30000000 DASH)\n",
		"amount:      0.29000000 DASH\n",
		"fee:         0.01000000 DASH\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
