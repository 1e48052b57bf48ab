package support

import "math"

// Per-kWh adjustments applied identically across all plans, and the
// consumption tax applied to the subtotal.
const (
	FuelAdjustmentPerKwh     = -0.8
	RenewableSurchargePerKwh = 1.4
	TaxRate                  = 0.10
)

// Tier boundaries of the standard tariff ladder.
const (
	tier1Limit = 120
	tier2Limit = 300
)

// SplitTiers divides monthly consumption across the three rate tiers:
// up to 120 kWh, 120 to 300 kWh, and everything above 300 kWh.
func SplitTiers(totalKwh int) (tier1, tier2, tier3 int) {
	if totalKwh < 0 {
		totalKwh = 0
	}
	tier1 = min(totalKwh, tier1Limit)
	tier2 = min(max(totalKwh-tier1Limit, 0), tier2Limit-tier1Limit)
	tier3 = max(totalKwh-tier2Limit, 0)
	return tier1, tier2, tier3
}

// BasicChargeFor returns the fixed monthly charge for the contracted
// amperage, falling back to the plan's first listed charge when the
// amperage has no entry.
func BasicChargeFor(plan *Plan, amperage int) int {
	for _, bc := range plan.Pricing.BasicCharges {
		if bc.Amperage == amperage {
			return bc.MonthlyCharge
		}
	}
	if len(plan.Pricing.BasicCharges) > 0 {
		return plan.Pricing.BasicCharges[0].MonthlyCharge
	}
	return 0
}

// EstimateCharge computes the monthly total in yen for the given usage
// under a plan: basic charge plus tiered energy charges, fuel
// adjustment and renewable surcharge, then consumption tax, rounded to
// the nearest yen.
func EstimateCharge(plan *Plan, amperage, usageKwh int) int {
	tier1, tier2, tier3 := SplitTiers(usageKwh)

	subtotal := float64(BasicChargeFor(plan, amperage)) +
		float64(tier1)*plan.Pricing.Tier1.PricePerKwh +
		float64(tier2)*plan.Pricing.Tier2.PricePerKwh +
		float64(tier3)*plan.Pricing.Tier3.PricePerKwh +
		float64(usageKwh)*FuelAdjustmentPerKwh +
		float64(usageKwh)*RenewableSurchargePerKwh

	return int(math.Round(subtotal * (1 + TaxRate)))
}

// ItemizeCharges produces the full bill breakdown the way statements
// print it: each component floored to whole yen before summation.
func ItemizeCharges(plan *Plan, amperage, usageKwh int) (Usage, Charges) {
	tier1, tier2, tier3 := SplitTiers(usageKwh)

	usage := Usage{
		TotalKwh: usageKwh,
		Tier1Kwh: tier1,
		Tier2Kwh: tier2,
		Tier3Kwh: tier3,
	}

	charges := Charges{
		BasicCharge:     BasicChargeFor(plan, amperage),
		Tier1Charge:     int(math.Floor(float64(tier1) * plan.Pricing.Tier1.PricePerKwh)),
		Tier2Charge:     int(math.Floor(float64(tier2) * plan.Pricing.Tier2.PricePerKwh)),
		Tier3Charge:     int(math.Floor(float64(tier3) * plan.Pricing.Tier3.PricePerKwh)),
		FuelAdjustment:  int(math.Floor(float64(usageKwh) * FuelAdjustmentPerKwh)),
		RenewableEnergy: int(math.Floor(float64(usageKwh) * RenewableSurchargePerKwh)),
	}
	charges.Subtotal = charges.BasicCharge + charges.Tier1Charge + charges.Tier2Charge +
		charges.Tier3Charge + charges.FuelAdjustment + charges.RenewableEnergy
	charges.Tax = int(math.Floor(float64(charges.Subtotal) * TaxRate))
	charges.TotalAmount = charges.Subtotal + charges.Tax
	return usage, charges
}
