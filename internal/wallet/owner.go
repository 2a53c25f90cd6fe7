package wallet

// Owner returns the current owner.
func (w *Wallet) Owner() (Address, error) {
	return reader{r: w.db}.owner()
}

// requireOwner rejects callers other than the current owner.
func (t *txn) requireOwner(caller Address) error {
	owner, err := t.owner()
	if err != nil {
		return err
	}

	if caller != owner {
		return reject(KindAuthorization, ErrNotOwner)
	}

	return nil
}

// installOwner is the only write path to the owner after genesis.
func installOwner(t *txn, owner Address) error {
	return t.setOwner(owner)
}
