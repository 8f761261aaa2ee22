package types

// Target is one destination of a fan-out. It is either OwnDevice or
// PeerDevice; the caller's current device is never a Target.
type Target interface {
	Bundle() PreKeyBundle
	isTarget()
}

// OwnDevice is another device of the sending user.
type OwnDevice struct{ B PreKeyBundle }

// PeerDevice is a device of some other user.
type PeerDevice struct{ B PreKeyBundle }

func (t OwnDevice) Bundle() PreKeyBundle  { return t.B }
func (t PeerDevice) Bundle() PreKeyBundle { return t.B }

func (OwnDevice) isTarget()  {}
func (PeerDevice) isTarget() {}

// Classify tags each bundle relative to self and drops the bundle that
// addresses self. The second return reports whether self was present.
func Classify(self DeviceAddress, bundles []PreKeyBundle) ([]Target, bool) {
	out := make([]Target, 0, len(bundles))
	sawSelf := false
	for _, b := range bundles {
		switch {
		case b.Address() == self:
			sawSelf = true
		case b.UserID == self.UserID:
			out = append(out, OwnDevice{B: b})
		default:
			out = append(out, PeerDevice{B: b})
		}
	}
	return out, sawSelf
}
