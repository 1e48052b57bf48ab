package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltdesk/voltdesk/pkg/realtime/transcript"
	"github.com/voltdesk/voltdesk/pkg/tools"
)

// Domain error codes returned inside tool payloads. These are business
// outcomes the model explains to the customer, not dispatch failures.
const (
	CodeCustomerNotFound      = "CUSTOMER_NOT_FOUND"
	CodeVerificationFailed    = "VERIFICATION_FAILED"
	CodeInvalidInput          = "INVALID_INPUT"
	CodePlanNotFound          = "PLAN_NOT_FOUND"
	CodeSmartMeterUnavailable = "SMART_METER_NOT_AVAILABLE"
)

// TranscriptSource supplies the conversation record for the
// send_conversation_email tool.
type TranscriptSource interface {
	Snapshot() []transcript.Entry
}

// Toolset binds the support tools to their collaborators.
type Toolset struct {
	store      Store
	mailer     *Mailer
	transcript TranscriptSource
	logger     *slog.Logger
	now        func() time.Time
}

func NewToolset(store Store, mailer *Mailer, source TranscriptSource, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{
		store:      store,
		mailer:     mailer,
		transcript: source,
		logger:     logger,
		now:        time.Now,
	}
}

// Registrations returns the full tool surface exposed to the model.
func (t *Toolset) Registrations() []tools.Registration {
	return []tools.Registration{
		tools.Make("get_customer_info",
			"顧客IDまたは電話番号下4桁と契約者名で本人確認し、契約情報を取得します。",
			t.getCustomerInfo),
		tools.Make("get_billing_history",
			"指定した顧客の過去の請求履歴（使用量と請求金額）を取得します。",
			t.getBillingHistory),
		tools.Make("get_current_usage",
			"今月の電力使用量をリアルタイムで取得します（スマートメーター対応のお客様のみ）。",
			t.getCurrentUsage),
		tools.Make("list_available_plans",
			"契約可能な電力プランの一覧を取得します。顧客IDを指定すると、現在の契約に基づいた推奨プランも表示されます。",
			t.listAvailablePlans),
		tools.Make("simulate_plan_change",
			"プラン変更した場合の月額料金をシミュレーションし、現在のプランとの差額を計算します。",
			t.simulatePlanChange),
		tools.Make("submit_plan_change_request",
			"料金プランの変更申請を行います。申請前にお客様の同意確認が必要です。",
			t.submitPlanChangeRequest),
		tools.Make("send_conversation_email",
			"本日の会話記録を本人確認済みのお客様のメールアドレスに送信します。",
			t.sendConversationEmail),
	}
}

// domainError is a business-outcome payload. The dispatch succeeds; the
// model reads the code and explains it to the customer.
func domainError(code, message string) map[string]any {
	return map[string]any{
		"success":   false,
		"error":     message,
		"errorCode": code,
	}
}

// lookupCustomer resolves a customer, mapping a missing record to a
// domain payload and everything else to a handler error.
func (t *Toolset) lookupCustomer(ctx context.Context, identifier string) (*Customer, map[string]any, error) {
	customer, err := t.store.FindCustomer(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, domainError(CodeCustomerNotFound, "お客様情報が見つかりませんでした。お客様番号をご確認ください。"), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return customer, nil, nil
}

type customerInfoInput struct {
	CustomerID       string `json:"customerId" desc:"顧客ID（例: C-001）または電話番号下4桁（例: 5678）"`
	VerificationName string `json:"verificationName" desc:"本人確認用のご契約者様のお名前（漢字またはカタカナ）"`
}

func (t *Toolset) getCustomerInfo(ctx context.Context, input customerInfoInput) (any, error) {
	customer, errPayload, err := t.lookupCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if errPayload != nil {
		return errPayload, nil
	}

	if !nameMatches(customer, input.VerificationName) {
		t.logger.Warn("identity verification failed", "customer_id", customer.CustomerID)
		return domainError(CodeVerificationFailed,
			"ご本人確認ができませんでした。ご契約者様のお名前をご確認ください。"), nil
	}

	return map[string]any{
		"success": true,
		"customer": map[string]any{
			"customerId":       customer.CustomerID,
			"customerName":     customer.Name,
			"customerNameKana": customer.NameKana,
			"phone":            maskPhone(customer.Phone),
			"email":            customer.Email,
			"address":          customer.Address.String(),
			"contract": map[string]any{
				"contractId":         customer.Contract.ContractID,
				"planId":             customer.Contract.PlanID,
				"planName":           customer.Contract.PlanName,
				"contractedAmperage": customer.Contract.ContractedAmperage,
				"contractStartDate":  customer.Contract.ContractStartDate,
			},
			"meterType":     customer.MeterType,
			"paymentMethod": formatPaymentMethod(customer.PaymentMethod),
		},
	}, nil
}

type billingHistoryInput struct {
	CustomerID string `json:"customerId" desc:"顧客ID（必須。例: C-001）"`
	Months     *int   `json:"months,omitempty" desc:"取得する月数（1〜24、デフォルト6）"`
}

func (t *Toolset) getBillingHistory(ctx context.Context, input billingHistoryInput) (any, error) {
	months := 6
	if input.Months != nil {
		months = min(max(*input.Months, 1), 24)
	}

	billings, err := t.store.BillingHistory(ctx, input.CustomerID, months)
	if errors.Is(err, ErrNotFound) {
		return domainError(CodeCustomerNotFound, "請求履歴が見つかりませんでした。"), nil
	}
	if err != nil {
		return nil, err
	}

	formatted := make([]map[string]any, 0, len(billings))
	totalUsage, totalAmount := 0, 0
	for _, b := range billings {
		totalUsage += b.Usage.TotalKwh
		totalAmount += b.Charges.TotalAmount
		formatted = append(formatted, map[string]any{
			"billingMonth":    formatMonth(b.Period.Year, b.Period.Month),
			"usageKwh":        b.Usage.TotalKwh,
			"basicCharge":     b.Charges.BasicCharge,
			"usageCharge":     b.Charges.Tier1Charge + b.Charges.Tier2Charge + b.Charges.Tier3Charge,
			"fuelAdjustment":  b.Charges.FuelAdjustment,
			"renewableEnergy": b.Charges.RenewableEnergy,
			"totalAmount":     b.Charges.TotalAmount,
			"paymentStatus":   b.PaymentStatus,
			"paymentDueDate":  b.PaymentDueDate,
		})
	}

	return map[string]any{
		"success":    true,
		"customerId": input.CustomerID,
		"billings":   formatted,
		"summary": map[string]any{
			"totalMonths":     len(billings),
			"averageUsageKwh": roundDiv(totalUsage, len(billings)),
			"averageAmount":   roundDiv(totalAmount, len(billings)),
		},
	}, nil
}

type currentUsageInput struct {
	CustomerID string `json:"customerId" desc:"顧客ID（必須。例: C-001）"`
}

func (t *Toolset) getCurrentUsage(ctx context.Context, input currentUsageInput) (any, error) {
	customer, errPayload, err := t.lookupCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if errPayload != nil {
		return errPayload, nil
	}

	if customer.MeterType != MeterSmart {
		return domainError(CodeSmartMeterUnavailable,
			"スマートメーターが設置されていないため、リアルタイムの使用量は確認できません。次回の検針日以降に請求書でご確認ください。"), nil
	}

	usage, err := t.store.CurrentUsage(ctx, customer.CustomerID)
	if errors.Is(err, ErrNotFound) {
		return domainError(CodeCustomerNotFound, "今月の使用量データがまだありません。"), nil
	}
	if err != nil {
		return nil, err
	}

	comparison := "比較データなし"
	if billings, err := t.store.BillingHistory(ctx, customer.CustomerID, 1); err == nil && len(billings) > 0 {
		lastMonthSamePeriod := billings[0].Usage.TotalKwh * usage.DaysElapsed / 30
		if lastMonthSamePeriod > 0 {
			diff := float64(usage.TotalKwhToDate-lastMonthSamePeriod) / float64(lastMonthSamePeriod) * 100
			if diff >= 0 {
				comparison = fmt.Sprintf("+%d%%", int(math.Round(diff)))
			} else {
				comparison = fmt.Sprintf("%d%%", int(math.Round(diff)))
			}
		}
	}

	// Breakdown uses the customer's actual plan and contracted amperage.
	plan, err := t.store.PlanByID(ctx, customer.Contract.PlanID)
	if err != nil {
		return nil, err
	}
	_, charges := ItemizeCharges(plan, customer.Contract.ContractedAmperage, usage.EstimatedMonthlyKwh)

	return map[string]any{
		"success":      true,
		"customerId":   customer.CustomerID,
		"currentMonth": formatMonth(usage.Year, usage.Month),
		"usage": map[string]any{
			"totalKwhToDate":          usage.TotalKwhToDate,
			"daysElapsed":             usage.DaysElapsed,
			"estimatedMonthlyKwh":     usage.EstimatedMonthlyKwh,
			"comparisonWithLastMonth": comparison,
		},
		"estimatedBill": map[string]any{
			"estimatedAmount": usage.EstimatedMonthlyCharge,
			"breakdown": map[string]any{
				"basicCharge":     charges.BasicCharge,
				"usageCharge":     charges.Tier1Charge + charges.Tier2Charge + charges.Tier3Charge,
				"fuelAdjustment":  charges.FuelAdjustment,
				"renewableEnergy": charges.RenewableEnergy,
			},
		},
		"lastUpdated": usage.LastUpdated.Format(time.RFC3339),
	}, nil
}

type listPlansInput struct {
	CustomerID string `json:"customerId,omitempty" desc:"顧客ID（省略可。例: C-001。指定時は現在の契約に基づいた推奨プランも含む）"`
}

func (t *Toolset) listAvailablePlans(ctx context.Context, input listPlansInput) (any, error) {
	var currentPlanID string
	averageUsage := 0
	if input.CustomerID != "" {
		if customer, err := t.store.FindCustomer(ctx, input.CustomerID); err == nil {
			currentPlanID = customer.Contract.PlanID
			if billings, err := t.store.BillingHistory(ctx, customer.CustomerID, 6); err == nil && len(billings) > 0 {
				total := 0
				for _, b := range billings {
					total += b.Usage.TotalKwh
				}
				averageUsage = roundDiv(total, len(billings))
			}
		}
	}

	plans, err := t.store.AvailablePlans(ctx)
	if err != nil {
		return nil, err
	}

	formatted := make([]map[string]any, 0, len(plans))
	for _, plan := range plans {
		recommended := currentPlanID != "" && plan.ID != currentPlanID &&
			plan.ID == "plan-family-value" && averageUsage > 300

		entry := map[string]any{
			"planId":         plan.ID,
			"planName":       plan.PlanName,
			"planType":       plan.PlanType,
			"description":    plan.Description,
			"targetCustomer": plan.TargetCustomer,
			"basicCharges":   plan.Pricing.BasicCharges,
			"unitPrices": map[string]string{
				"tier1": fmt.Sprintf("〜%dkWh: %.2f円/kWh", plan.Pricing.Tier1.UpToKwh, plan.Pricing.Tier1.PricePerKwh),
				"tier2": fmt.Sprintf("%d〜%dkWh: %.2f円/kWh", plan.Pricing.Tier1.UpToKwh+1, plan.Pricing.Tier2.UpToKwh, plan.Pricing.Tier2.PricePerKwh),
				"tier3": fmt.Sprintf("%dkWh〜: %.2f円/kWh", plan.Pricing.Tier2.UpToKwh+1, plan.Pricing.Tier3.PricePerKwh),
			},
			"benefits":      plan.Benefits,
			"isRecommended": recommended,
		}
		if plan.MinimumContractMonths > 0 {
			entry["minimumContractPeriod"] = plan.MinimumContractMonths
		}
		if plan.EarlyTerminationFee > 0 {
			entry["earlyTerminationFee"] = plan.EarlyTerminationFee
		}
		formatted = append(formatted, entry)
	}

	out := map[string]any{
		"success": true,
		"plans":   formatted,
	}
	if currentPlanID != "" {
		out["currentPlanId"] = currentPlanID
	}
	return out, nil
}

type simulatePlanInput struct {
	CustomerID string `json:"customerId" desc:"顧客ID（必須。例: C-001）"`
	NewPlanID  string `json:"newPlanId" desc:"変更先のプランID（必須。例: plan-family-value）"`
}

func (t *Toolset) simulatePlanChange(ctx context.Context, input simulatePlanInput) (any, error) {
	customer, errPayload, err := t.lookupCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if errPayload != nil {
		return errPayload, nil
	}

	currentPlan, err := t.store.PlanByID(ctx, customer.Contract.PlanID)
	if errors.Is(err, ErrNotFound) {
		return domainError(CodePlanNotFound, "現在のプラン情報が見つかりませんでした。"), nil
	}
	if err != nil {
		return nil, err
	}

	newPlan, err := t.store.PlanByID(ctx, input.NewPlanID)
	if errors.Is(err, ErrNotFound) {
		return domainError(CodePlanNotFound, "指定されたプランが見つかりませんでした。"), nil
	}
	if err != nil {
		return nil, err
	}
	if !newPlan.IsAvailable {
		return domainError(CodePlanNotFound, "指定されたプランは現在お申込みいただけません。"), nil
	}

	billings, err := t.store.BillingHistory(ctx, customer.CustomerID, 12)
	if errors.Is(err, ErrNotFound) || len(billings) == 0 {
		return domainError(CodeCustomerNotFound, "過去の使用量データがないためシミュレーションができません。"), nil
	}
	if err != nil {
		return nil, err
	}

	amperage := customer.Contract.ContractedAmperage
	comparison := make([]map[string]any, 0, len(billings))
	totalCurrent, totalNew := 0, 0
	for _, b := range billings {
		currentAmount := EstimateCharge(currentPlan, amperage, b.Usage.TotalKwh)
		newAmount := EstimateCharge(newPlan, amperage, b.Usage.TotalKwh)
		totalCurrent += currentAmount
		totalNew += newAmount
		comparison = append(comparison, map[string]any{
			"month":             formatMonth(b.Period.Year, b.Period.Month),
			"usageKwh":          b.Usage.TotalKwh,
			"currentPlanAmount": currentAmount,
			"newPlanAmount":     newAmount,
			"difference":        newAmount - currentAmount,
		})
	}

	totalDifference := totalNew - totalCurrent
	averageMonthlyDifference := roundDiv(totalDifference, len(comparison))

	var notes []string
	if newPlan.MinimumContractMonths > 0 {
		notes = append(notes, fmt.Sprintf("このプランには%dヶ月の最低契約期間があります。", newPlan.MinimumContractMonths))
	}
	if newPlan.EarlyTerminationFee > 0 {
		notes = append(notes, fmt.Sprintf("期間内解約の場合、%d円の解約手数料がかかります。", newPlan.EarlyTerminationFee))
	}
	if totalDifference > 0 {
		notes = append(notes, "シミュレーション結果では料金が上がる見込みです。ご検討ください。")
	}

	return map[string]any{
		"success":    true,
		"customerId": customer.CustomerID,
		"currentPlan": map[string]string{
			"planId":   currentPlan.ID,
			"planName": currentPlan.PlanName,
		},
		"newPlan": map[string]string{
			"planId":   newPlan.ID,
			"planName": newPlan.PlanName,
		},
		"simulation": map[string]any{
			"monthlyComparison": comparison,
			"summary": map[string]any{
				"averageMonthlyDifference": averageMonthlyDifference,
				"estimatedAnnualSaving":    averageMonthlyDifference * -12,
				"savingsPercent":           int(math.Round(float64(totalDifference) / float64(totalCurrent) * -100)),
			},
		},
		"notes": notes,
	}, nil
}

type submitPlanChangeInput struct {
	CustomerID           string `json:"customerId" desc:"顧客ID（必須。例: C-001）"`
	NewPlanID            string `json:"newPlanId" desc:"変更先のプランID（必須。例: plan-family-value）"`
	CustomerConfirmation bool   `json:"customerConfirmation" desc:"お客様の同意確認（必須: true）"`
}

func (t *Toolset) submitPlanChangeRequest(ctx context.Context, input submitPlanChangeInput) (any, error) {
	if !input.CustomerConfirmation {
		return domainError(CodeInvalidInput,
			"プラン変更にはお客様の同意確認が必要です。変更内容をご確認の上、同意いただけますか？"), nil
	}

	customer, errPayload, err := t.lookupCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if errPayload != nil {
		return errPayload, nil
	}

	newPlan, err := t.store.PlanByID(ctx, input.NewPlanID)
	if errors.Is(err, ErrNotFound) {
		return domainError(CodePlanNotFound, "指定されたプランが見つかりませんでした。"), nil
	}
	if err != nil {
		return nil, err
	}
	if !newPlan.IsAvailable {
		return domainError(CodePlanNotFound, "指定されたプランは現在お申込みいただけません。"), nil
	}
	if customer.Contract.PlanID == newPlan.ID {
		return domainError(CodeInvalidInput, "すでにこのプランをご契約中です。"), nil
	}

	now := t.now()
	effective := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	effectiveStr := formatMonth(effective.Year(), int(effective.Month()))

	request := &PlanChangeRequest{
		ID:         fmt.Sprintf("PCR-%s-%s", customer.CustomerID, uuid.NewString()),
		CustomerID: customer.CustomerID,
		CurrentPlan: PlanRef{
			PlanID:   customer.Contract.PlanID,
			PlanName: customer.Contract.PlanName,
			Amperage: customer.Contract.ContractedAmperage,
		},
		RequestedPlan: PlanRef{
			PlanID:   newPlan.ID,
			PlanName: newPlan.PlanName,
			Amperage: customer.Contract.ContractedAmperage,
		},
		Status:                 RequestPending,
		RequestedEffectiveDate: effective.Format("2006-01-02"),
		CreatedAt:              now,
	}
	if err := t.store.CreatePlanChangeRequest(ctx, request); err != nil {
		return nil, err
	}

	// Best effort; a mail failure never fails the submitted request.
	if err := t.mailer.SendPlanChangeNotification(customer.Email, customer.Name,
		request.ID, customer.Contract.PlanName, newPlan.PlanName, effectiveStr); err != nil {
		t.logger.Warn("plan change notification mail failed", "request_id", request.ID, "error", err)
	}

	nextSteps := []string{
		"確認のメールをお送りしますので、ご確認ください。",
		"変更内容に誤りがある場合は、お電話にてお問い合わせください。",
	}
	if newPlan.MinimumContractMonths > 0 {
		nextSteps = append(nextSteps,
			fmt.Sprintf("なお、%sには%dヶ月の最低契約期間がございます。", newPlan.PlanName, newPlan.MinimumContractMonths))
	}

	return map[string]any{
		"success":    true,
		"requestId":  request.ID,
		"customerId": customer.CustomerID,
		"changeDetails": map[string]any{
			"currentPlanName": customer.Contract.PlanName,
			"newPlanName":     newPlan.PlanName,
			"effectiveDate":   effectiveStr,
			"submittedAt":     now.Format(time.RFC3339),
		},
		"message":   fmt.Sprintf("プラン変更申請を受け付けました。%sの検針日から%sが適用されます。", effectiveStr, newPlan.PlanName),
		"nextSteps": nextSteps,
	}, nil
}

type conversationEmailInput struct {
	CustomerID string `json:"customerId" desc:"本人確認済みのお客様の顧客ID（必須。例: C-001）"`
}

func (t *Toolset) sendConversationEmail(ctx context.Context, input conversationEmailInput) (any, error) {
	customer, errPayload, err := t.lookupCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if errPayload != nil {
		return errPayload, nil
	}

	if t.transcript == nil {
		return domainError(CodeInvalidInput, "会話記録がありません。"), nil
	}
	entries := t.transcript.Snapshot()
	if len(entries) == 0 {
		return domainError(CodeInvalidInput, "会話記録がありません。"), nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		speaker := "オペレーター"
		if e.Speaker == "user" {
			speaker = "お客様"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, e.Text))
	}

	if !t.mailer.Configured() {
		return map[string]any{
			"success": true,
			"skipped": true,
			"message": "メール送信が設定されていないため、送信をスキップしました。",
		}, nil
	}

	if err := t.mailer.SendConversationTranscript(customer.Email, customer.Name, lines); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"sentTo":  customer.Email,
		"message": "会話記録をメールで送信しました。",
	}, nil
}

var phoneRe = regexp.MustCompile(`^(\d{2,4})-(\d{4})-(\d{4})$`)

func maskPhone(phone string) string {
	return phoneRe.ReplaceAllString(phone, "****-****-$3")
}

func formatPaymentMethod(pm PaymentMethod) string {
	switch pm.Type {
	case PaymentCreditCard:
		return fmt.Sprintf("クレジットカード（****%s）", pm.LastFourDigits)
	case PaymentBankTransfer:
		return fmt.Sprintf("口座振替（%s）", pm.BankName)
	case PaymentConvenienceStore:
		return "コンビニ払い"
	default:
		return string(pm.Type)
	}
}

func formatMonth(year, month int) string {
	return fmt.Sprintf("%d年%d月", year, month)
}

func roundDiv(total, n int) int {
	return int(math.Round(float64(total) / float64(n)))
}

// toKatakana folds hiragana to katakana so spoken names match however
// the transcription chose to write them.
func toKatakana(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x3041 && r <= 0x3096 {
			r += 0x60
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '　' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

// nameMatches verifies a spoken name against the contract holder,
// preferring katakana comparison since voice transcription is unstable
// about kanji.
func nameMatches(customer *Customer, verification string) bool {
	input := stripSpaces(verification)
	if input == "" {
		return false
	}
	name := stripSpaces(customer.Name)
	kana := stripSpaces(customer.NameKana)
	inputKana := toKatakana(input)

	if kana != "" && (strings.Contains(kana, inputKana) || strings.Contains(inputKana, kana)) {
		return true
	}
	if strings.Contains(name, input) {
		return true
	}
	// Surname-only fallback against the family name.
	if fields := strings.FieldsFunc(customer.Name, func(r rune) bool {
		return r == ' ' || r == '　'
	}); len(fields) > 0 {
		return strings.Contains(input, fields[0])
	}
	return false
}
