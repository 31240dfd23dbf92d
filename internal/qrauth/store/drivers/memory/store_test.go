package memory_test

import (
	"testing"

	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/memory"
	"github.com/omnipdf/qrauth/internal/qrauth/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) store.Sessions {
		return memory.NewStore()
	})
}
