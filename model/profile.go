package model

// PerturbationProfile holds the magnitudes applied by one perturbation
// tick. A draw r below 0.5 moves a device by -r*Low, otherwise by +r*High.
type PerturbationProfile struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

var (
	// NormalProfile is used after a start command.
	NormalProfile = PerturbationProfile{Name: "normal", Low: 0.01, High: 0.01}

	// PostResetProfile is used after a reset command. The Low/High
	// asymmetry is carried over unchanged from the fleet's reference
	// behaviour and is suspected to be unintentional.
	PostResetProfile = PerturbationProfile{Name: "post-reset", Low: 0.004, High: 0.005}
)
