package genesis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"GuardVault/internal/wallet"
)

// File is the genesis configuration of a vault, read from TOML:
//
//	owner = "<hex address>"
//	threshold = 2
//	guardians = ["<hex commitment>", ...]
//	guardian_addresses = ["<hex address>", ...]
//	removal_delay = "72h"
//	call_targets = ["modules/refund.wasm"]
//
// Guardians may be given as commitments, as addresses (committed at load),
// or both. Relative call target paths resolve against the file's directory.
type File struct {
	Owner             wallet.Address      `toml:"owner"`
	Threshold         uint64              `toml:"threshold"`
	Guardians         []wallet.Commitment `toml:"guardians"`
	GuardianAddresses []wallet.Address    `toml:"guardian_addresses"`
	RemovalDelay      time.Duration       `toml:"removal_delay"`
	CallTargets       []string            `toml:"call_targets"`
}

// Load reads and validates a genesis file.
func Load(path string) (*File, error) {
	var f File

	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode %s:\n%w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown genesis key %q", undecoded[0].String())
	}

	dir := filepath.Dir(path)
	for i, target := range f.CallTargets {
		if !filepath.IsAbs(target) {
			f.CallTargets[i] = filepath.Join(dir, target)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate checks what can be checked before the vault is created.
// Duplicate guardians and the threshold bound are enforced by wallet.Create.
func (f *File) Validate() error {
	if f.Owner.IsZero() {
		return errors.New("genesis owner is required")
	}

	if f.RemovalDelay < 0 {
		return fmt.Errorf("negative removal delay: %s", f.RemovalDelay)
	}

	return nil
}

// Genesis returns the vault genesis with address guardians committed.
func (f *File) Genesis() wallet.Genesis {
	guardians := make([]wallet.Commitment, 0, len(f.Guardians)+len(f.GuardianAddresses))
	guardians = append(guardians, f.Guardians...)

	for _, a := range f.GuardianAddresses {
		guardians = append(guardians, wallet.Commit(a))
	}

	return wallet.Genesis{
		Owner:     f.Owner,
		Guardians: guardians,
		Threshold: f.Threshold,
	}
}

// Options returns the wallet options the file configures.
func (f *File) Options() []wallet.Option {
	if f.RemovalDelay == 0 {
		return nil
	}

	return []wallet.Option{wallet.WithRemovalDelay(f.RemovalDelay)}
}

// Write encodes f as TOML at path.
func Write(path string, f *File) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s:\n%w", path, err)
	}
	defer out.Close()

	if err := toml.NewEncoder(out).Encode(f); err != nil {
		return fmt.Errorf("encode genesis:\n%w", err)
	}

	return out.Close()
}
