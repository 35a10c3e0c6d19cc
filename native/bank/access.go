package bank

import "github.com/ethereum/go-ethereum/common"

// AccessController stores the admin account and gates privileged calls.
type AccessController struct {
	store stateStore
}

func NewAccessController(store stateStore) *AccessController {
	return &AccessController{store: store}
}

// Admin returns the current admin, the zero address before genesis.
func (a *AccessController) Admin() (common.Address, error) {
	var admin common.Address
	if _, err := a.store.KVGet(adminKey, &admin); err != nil {
		return common.Address{}, err
	}
	return admin, nil
}

func (a *AccessController) IsAdmin(caller common.Address) (bool, error) {
	if caller == (common.Address{}) {
		return false, nil
	}
	admin, err := a.Admin()
	if err != nil {
		return false, err
	}
	return admin == caller, nil
}

// RequireAdmin fails with ErrUnauthorized unless caller is the admin.
func (a *AccessController) RequireAdmin(caller common.Address) error {
	ok, err := a.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (a *AccessController) setAdmin(next common.Address) error {
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	return a.store.KVPut(adminKey, next)
}
