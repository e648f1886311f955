// Package storetest provides a conformance test suite for call store implementations.
//
// All store backends (memory, sqlite, postgres, badger) should pass these
// tests. The suite verifies that every backend satisfies the Store behavioral
// contract, catching regressions when store code changes: per-call mutual
// exclusion, transactional rollback, duplicate packet detection, and
// post-commit event delivery.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
//	        return store.NewMemory()
//	    })
//	}
//
// The factory function receives *testing.T so it can call t.TempDir() for
// stores that need filesystem paths (e.g., Badger) and t.Cleanup for teardown.
package storetest
