package consistency

// RunWithSingleLock is the pessimistic-lock critical-section driver: it
// acquires the lock over op's resources, and if acquisition succeeds, it
// re-validates the operation is still necessary (another client may have
// completed it while this one was acquiring), runs it, and reports whether
// this call is the one that actually performed the work.
//
// acquire performs the acquire-then-verify round trip against the meta
// segment; its shape mirrors the two-step protocol described for the
// pessimistic lock: an AirLockRequest is appended, then a follow-up check
// confirms it actually won.
func RunWithSingleLock(acquire func() (Status, error), op CriticalOperation) (bool, error) {
	status, err := acquire()
	if err != nil {
		return false, err
	}
	switch status {
	case Acquired:
		uninit, err := op.CheckUninit()
		if err != nil {
			return false, err
		}
		if !uninit {
			return false, nil
		}
		if err := op.Run(); err != nil {
			return false, err
		}
		return true, nil
	case Renewed:
		// A renewed lease means this client already held the lock and is
		// simply re-confirming it; the original operation it covered has
		// already run under the earlier Acquired call, so there's nothing
		// new to do here.
		return false, nil
	default:
		return false, nil
	}
}
