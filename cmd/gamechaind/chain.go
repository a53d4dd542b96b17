package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cmdconfig "gamechain/cmd/config"
	"gamechain/consensus"
	"gamechain/internal/chainerr"
	"gamechain/internal/store"
	"gamechain/modules/accounts"
	"gamechain/modules/assets"
	"gamechain/modules/dex"
	"gamechain/modules/energy"
	"gamechain/modules/fractional"
	"gamechain/modules/gamecurrency"
	"gamechain/modules/governance"
	"gamechain/modules/identity"
	"gamechain/modules/sessionkeys"
	pkgconfig "gamechain/pkg/config"
	"gamechain/runtime"
)

// chain bundles everything opened/loaded from a gamechaind configuration:
// the Store, the Runtime driving it, and the two modules the Runtime
// depends on directly as collaborators.
type chain struct {
	cfg          pkgconfig.Config
	store        *store.Store
	runtime      *runtime.Runtime
	accounts     *accounts.Module
	sessionKeys  *sessionkeys.Module
	validators   *consensus.ValidatorSet
}

// clockFromStore returns a lazy-regeneration clock reading the Store's
// committed height, matching how energy/fractional/governance/sessionkeys
// age their records against block height rather than wall-clock time.
func clockFromStore(st *store.Store) func() uint64 {
	return st.Height
}

func openChain() (*chain, error) {
	cmdconfig.LoadConfig(envFlag)
	cfg := cmdconfig.AppConfig

	st, err := store.Open(store.Config{WALPath: cfg.Storage.WALPath, SnapshotPath: cfg.Storage.SnapshotPath})
	if err != nil {
		return nil, err
	}

	if zl, err := newZapLogger(cfg.Logging.Level); err == nil {
		sugar := zl.Sugar()
		governance.SetLogger(sugar)
		identity.SetLogger(sugar)
	}

	fee := accounts.FeeConfig{
		BurnNumerator:   cfg.Runtime.BurnFeeNumerator,
		BurnDenominator: cfg.Runtime.BurnFeeDenominator,
		FlatFee:         cfg.Runtime.FlatFee,
	}
	acct := accounts.New(st, cfg.Runtime.ExistentialDeposit, cfg.Runtime.TotalSupplyCap, fee)
	clock := clockFromStore(st)

	ident := identity.New(st)
	ast := assets.New(st, clock)
	gcur := gamecurrency.New(st)
	dx := dex.New(st)
	nrg := energy.New(st, clock)
	frac := fractional.New(st, clock)
	gov := governance.New(st, clock)
	sess := sessionkeys.New(st, clock)
	validators := consensus.NewValidatorSet(st)

	reg := runtime.NewRegistry()
	for _, m := range []runtime.Module{acct, ident, ast, gcur, dx, nrg, frac, gov, sess} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	weights := runtime.NewWeightTable(runtime.Weight{RefTime: 1000, ProofSize: 64})
	weights.Set("accounts", accounts.CallTransfer, runtime.Weight{RefTime: 500, ProofSize: 32})

	rt := runtime.New(runtime.Config{
		Store:       st,
		Registry:    reg,
		Weights:     weights,
		Nonces:      acct,
		SessionKeys: sess,
		BlockBudget: runtime.Weight{RefTime: cfg.Runtime.BlockWeightBudget, ProofSize: 1 << 20},
	})

	return &chain{cfg: cfg, store: st, runtime: rt, accounts: acct, sessionKeys: sess, validators: validators}, nil
}

func (c *chain) applyGenesis(spec GenesisSpec) error {
	balances, err := spec.balances()
	if err != nil {
		return err
	}
	if err := accounts.ApplyGenesis(c.accounts, balances); err != nil {
		return err
	}
	validatorAddrs, err := spec.validatorAddrs()
	if err != nil {
		return err
	}
	for _, v := range validatorAddrs {
		if err := c.validators.RegisterValidator(v); err != nil {
			return err
		}
	}
	_, err = c.store.Commit()
	return err
}

func (c *chain) Close() error {
	return c.store.Close()
}

func genesisFilePath(c *chain) string {
	if c.cfg.Chain.GenesisFile != "" {
		return c.cfg.Chain.GenesisFile
	}
	return "genesis.yaml"
}

// newZapLogger builds a production zap logger honoring the configured
// level, used to give the governance and identity modules a real sink
// instead of their default no-op logger.
func newZapLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return chainerr.New(chainerr.IO, "%s: %v", op, err)
}
