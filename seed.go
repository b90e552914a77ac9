package artisan

import "time"

// DemoArtisans returns the seeded records used by the admin demo:
//   - "1" is an active artisan with booking history
//   - "2" is pending, its ID check passes
//   - "3" is blocked with an unverified ID, its ID check fails
func DemoArtisans() []*Artisan {
	lastSeen := time.Now().Add(-5 * time.Minute).UTC()
	return []*Artisan{
		{
			ID:       "1",
			Name:     "Jane Moon",
			Email:    "janemoon@gmail.com",
			Phone:    "08098989898",
			Category: "Plumbing",
			Location: "Abuja",
			Status:   StatusActive,
			KYC: KYC{
				IDType:   "National Identity card",
				IDStatus: IDStatusVerified,
			},
			Stats: Stats{
				HasActivity:       true,
				CompletedBookings: 12,
				OngoingBookings:   2,
				Rejected:          3,
				Complaints:        3,
				Reviews:           9,
				FlaggedReviews:    2,
				Disputes:          1,
			},
			LastSeenAt: cloneTime(&lastSeen),
		},
		{
			ID:       "2",
			Name:     "Femi Rachel",
			Email:    "femir@gmail.com",
			Phone:    "08098989898",
			Category: "Hairdressing",
			Location: "Ikota, Lagos",
			Status:   StatusPending,
			KYC: KYC{
				IDType:   "National Identity card",
				IDStatus: IDStatusUnverified,
			},
			LastSeenAt: cloneTime(&lastSeen),
		},
		{
			ID:       "3",
			Name:     "Obong Emma",
			Email:    "obongem@gmail.com",
			Phone:    "08098989898",
			Category: "Haircut",
			Location: "Port-harcourt",
			Status:   StatusBlocked,
			KYC:      KYC{IDStatus: IDStatusUnverified},
		},
	}
}

// DemoOracle pins the demo outcomes and falls back to a random check for
// every other record.
func DemoOracle() VerificationOracle {
	return FixedOracle{
		Outcomes: map[string]Outcome{
			"2": OutcomeVerified,
			"3": OutcomeFailed,
		},
		Fallback: NewRandomOracle(),
	}
}
