package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"gamechain/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Chain.ID != "gamechain-mainnet" {
		t.Fatalf("unexpected chain id: %s", AppConfig.Chain.ID)
	}
	if AppConfig.Consensus.ValidatorsRequired != 4 {
		t.Fatalf("unexpected validators required: %d", AppConfig.Consensus.ValidatorsRequired)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.Consensus.ValidatorsRequired != 1 {
		t.Fatalf("expected ValidatorsRequired 1, got %d", AppConfig.Consensus.ValidatorsRequired)
	}
	if AppConfig.Logging.Level != "debug" {
		t.Fatalf("expected logging override to debug")
	}
	if len(AppConfig.Network.BootstrapPeers) != 1 {
		t.Fatalf("expected one bootstrap peer, got %d", len(AppConfig.Network.BootstrapPeers))
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("chain:\n  id: sandbox-chain\nconsensus:\n  validators_required: 7\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Chain.ID != "sandbox-chain" {
		t.Fatalf("expected chain id sandbox-chain, got %s", AppConfig.Chain.ID)
	}
	if AppConfig.Consensus.ValidatorsRequired != 7 {
		t.Fatalf("expected ValidatorsRequired 7, got %d", AppConfig.Consensus.ValidatorsRequired)
	}
}
