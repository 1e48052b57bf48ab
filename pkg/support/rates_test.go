package support

import "testing"

func standardPlanB() *Plan {
	return &Plan{
		ID:       "plan-standard-b",
		PlanName: "従量電灯B",
		Pricing: PlanPricing{
			BasicCharges: []BasicCharge{
				{Amperage: 30, MonthlyCharge: 885},
				{Amperage: 40, MonthlyCharge: 1180},
				{Amperage: 50, MonthlyCharge: 1476},
				{Amperage: 60, MonthlyCharge: 1771},
			},
			Tier1: TierPrice{UpToKwh: 120, PricePerKwh: 19.88},
			Tier2: TierPrice{UpToKwh: 300, PricePerKwh: 26.46},
			Tier3: TierPrice{PricePerKwh: 30.57},
		},
	}
}

func TestSplitTiers(t *testing.T) {
	t.Parallel()
	cases := []struct {
		total               int
		tier1, tier2, tier3 int
	}{
		{0, 0, 0, 0},
		{80, 80, 0, 0},
		{120, 120, 0, 0},
		{121, 120, 1, 0},
		{280, 120, 160, 0},
		{300, 120, 180, 0},
		{450, 120, 180, 150},
		{-5, 0, 0, 0},
	}
	for _, tc := range cases {
		t1, t2, t3 := SplitTiers(tc.total)
		if t1 != tc.tier1 || t2 != tc.tier2 || t3 != tc.tier3 {
			t.Fatalf("SplitTiers(%d) = %d/%d/%d, want %d/%d/%d",
				tc.total, t1, t2, t3, tc.tier1, tc.tier2, tc.tier3)
		}
	}
}

func TestEstimateCharge(t *testing.T) {
	t.Parallel()
	plan := standardPlanB()

	// 280 kWh at 50A:
	//   1476 + 120*19.88 + 160*26.46 - 280*0.8 + 280*1.4 = 8263.2
	//   8263.2 * 1.10 = 9089.52, rounds to 9090.
	if got := EstimateCharge(plan, 50, 280); got != 9090 {
		t.Fatalf("EstimateCharge(280kWh, 50A) = %d, want 9090", got)
	}

	// Zero usage still pays the basic charge plus tax.
	if got := EstimateCharge(plan, 30, 0); got != 974 {
		t.Fatalf("EstimateCharge(0kWh, 30A) = %d, want 974", got)
	}
}

func TestBasicChargeForUnknownAmperage(t *testing.T) {
	t.Parallel()
	plan := standardPlanB()
	if got := BasicChargeFor(plan, 15); got != 885 {
		t.Fatalf("fallback basic charge = %d, want first entry 885", got)
	}
}

func TestItemizeCharges(t *testing.T) {
	t.Parallel()
	plan := standardPlanB()
	usage, charges := ItemizeCharges(plan, 50, 280)

	if usage.Tier1Kwh != 120 || usage.Tier2Kwh != 160 || usage.Tier3Kwh != 0 {
		t.Fatalf("usage=%+v", usage)
	}
	if charges.BasicCharge != 1476 {
		t.Fatalf("basic=%d", charges.BasicCharge)
	}
	if charges.Tier1Charge != 2385 || charges.Tier2Charge != 4233 {
		t.Fatalf("tiers=%d/%d", charges.Tier1Charge, charges.Tier2Charge)
	}
	if charges.FuelAdjustment != -224 || charges.RenewableEnergy != 392 {
		t.Fatalf("adjustments=%d/%d", charges.FuelAdjustment, charges.RenewableEnergy)
	}
	if charges.TotalAmount != charges.Subtotal+charges.Tax {
		t.Fatalf("total=%d subtotal=%d tax=%d", charges.TotalAmount, charges.Subtotal, charges.Tax)
	}
}
