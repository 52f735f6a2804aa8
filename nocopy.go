package asyncrw

// noCopy lets go vet's copylocks check flag an RWLock or Loop passed
// by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
