package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dentdesk/dentdesk/internal/domain/auditevent"
	"github.com/dentdesk/dentdesk/internal/domain/billing"
	"github.com/dentdesk/dentdesk/internal/domain/clinical"
	"github.com/dentdesk/dentdesk/internal/domain/identity"
	"github.com/dentdesk/dentdesk/internal/domain/inbox"
	"github.com/dentdesk/dentdesk/internal/domain/scheduling"
	"github.com/dentdesk/dentdesk/internal/domain/supply"
	"github.com/dentdesk/dentdesk/internal/platform/db"
	"github.com/dentdesk/dentdesk/internal/platform/events"
	"github.com/dentdesk/dentdesk/internal/platform/lock"
	"github.com/dentdesk/dentdesk/internal/platform/payment"
)

var (
	ErrInvalid              = errors.New("invalid completion request")
	ErrVisitInProgress      = errors.New("visit is already being saved")
	ErrAppointmentCompleted = errors.New("appointment is already completed")
	ErrAppointmentClosed    = errors.New("appointment is cancelled or marked no-show")
	ErrStockInsufficient    = errors.New("insufficient stock")
)

// StockError lists the items a save would draw below zero.
type StockError struct {
	Risks []StockRisk
}

func (e *StockError) Error() string {
	names := make([]string, 0, len(e.Risks))
	for _, r := range e.Risks {
		names = append(names, fmt.Sprintf("%s (need %d, have %d)", r.Name, r.Need, r.Have))
	}
	return fmt.Sprintf("%v: %s", ErrStockInsufficient, strings.Join(names, ", "))
}

func (e *StockError) Is(target error) bool { return target == ErrStockInsufficient }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Outcome states.
const (
	StateIdle      = "idle"
	StateSaving    = "saving"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

const lockTTL = 2 * time.Minute

type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status string) (*scheduling.Appointment, error)
	ScheduleRecall(ctx context.Context, a *scheduling.Appointment, label, reason string) (*scheduling.Recall, error)
}

type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	LinkedUserID(ctx context.Context, dentistID uuid.UUID) (string, error)
}

type Clinical interface {
	CreateTreatment(ctx context.Context, t *clinical.Treatment) error
	CreateNote(ctx context.Context, n *clinical.ClinicalNote) error
	CreatePrescription(ctx context.Context, p *clinical.Prescription) error
}

type Invoices interface {
	CreateInvoice(ctx context.Context, inv *billing.Invoice) error
	CompleteVisitAtomic(ctx context.Context, v billing.AtomicVisit) (uuid.UUID, error)
	SetPaymentRequest(ctx context.Context, id uuid.UUID, paymentRequestID string) error
}

type Inventory interface {
	Snapshot(ctx context.Context) ([]*supply.InventoryItem, error)
	Deduct(ctx context.Context, itemID uuid.UUID, qty int, appointmentID uuid.UUID, createdBy string, allowNegative bool) (*supply.StockChange, error)
	LowStockDefault() int
}

type Notifier interface {
	Notify(ctx context.Context, userID, templateID string, data map[string]string, extra map[string]interface{}) (*inbox.Notification, error)
}

type Auditor interface {
	Record(ctx context.Context, userID, action, entityType, entityID string, details map[string]interface{}) (*auditevent.AuditLog, error)
}

// TxFunc runs fn in a transaction. Savepoint variants run fn in a savepoint
// of the transaction carried by ctx.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// Deps wires the orchestrator. InTx and Savepoint default to running fn
// directly, which is what the unit tests use.
type Deps struct {
	Appointments Appointments
	Directory    Directory
	Clinical     Clinical
	Invoices     Invoices
	Inventory    Inventory
	Notifier     Notifier
	Auditor      Auditor
	Payments     payment.Requester
	Events       events.Publisher
	Locker       lock.Locker
	InTx         TxFunc
	Savepoint    TxFunc
	Logger       zerolog.Logger
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	direct := func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	if d.InTx == nil {
		d.InTx = direct
	}
	if d.Savepoint == nil {
		d.Savepoint = direct
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Events == nil {
		d.Events = events.NewLogPublisher(d.Logger)
	}
	return &Service{Deps: d}
}

// -- Requests --

type ProcedureInput struct {
	ID              string           `json:"id"`
	Key             string           `json:"key,omitempty"`
	Name            string           `json:"name,omitempty"`
	Quantity        int              `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Tooth           string           `json:"tooth,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
}

type SupplyOverrideInput struct {
	ProcedureID string `json:"procedure_id"`
	SKU         string `json:"sku"`
	Included    bool   `json:"included"`
}

type ManualSupplyInput struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

type PrescriptionInput struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// SaveRequest is the submitted completion sheet of one appointment.
type SaveRequest struct {
	AppointmentID        uuid.UUID             `json:"-"`
	Procedures           []ProcedureInput      `json:"procedures"`
	SupplyOverrides      []SupplyOverrideInput `json:"supply_overrides,omitempty"`
	ManualSupplies       []ManualSupplyInput   `json:"manual_supplies,omitempty"`
	Adjustment           Adjustment            `json:"adjustment"`
	FinalTotalOverride   *decimal.Decimal      `json:"final_total_override,omitempty"`
	Notes                string                `json:"notes,omitempty"`
	Prescriptions        []PrescriptionInput   `json:"prescriptions,omitempty"`
	CreateInvoice        bool                  `json:"create_invoice"`
	AutoDeduct           bool                  `json:"auto_deduct"`
	ConfirmStockOverride bool                  `json:"confirm_stock_override"`
	SendPaymentLink      bool                  `json:"send_payment_link"`
	NextVisit            string                `json:"next_visit,omitempty"`
	RecallReason         string                `json:"recall_reason,omitempty"`
	ActorID              string                `json:"-"`
}

// BuildSheet applies the request to a fresh sheet over inventory.
func BuildSheet(req SaveRequest, inventory []*supply.InventoryItem) (*Sheet, error) {
	sheet := NewSheet(inventory)
	for i, p := range req.Procedures {
		var (
			line *ProcedureLine
			err  error
		)
		if p.Key != "" {
			line, err = sheet.AddCatalogProcedure(p.ID, p.Key)
		} else {
			price := decimal.Zero
			if p.UnitPrice != nil {
				price = *p.UnitPrice
			}
			line, err = sheet.AddCustomProcedure(p.ID, p.Name, price)
		}
		if err != nil {
			return nil, invalid("procedures[%d]: %v", i, err)
		}
		if p.Quantity != 0 {
			if err := sheet.SetQuantity(line.ID, p.Quantity); err != nil {
				return nil, invalid("procedures[%d]: %v", i, err)
			}
		}
		if p.Key != "" && p.UnitPrice != nil {
			if err := sheet.SetUnitPrice(line.ID, *p.UnitPrice); err != nil {
				return nil, invalid("procedures[%d]: %v", i, err)
			}
		}
		if p.Key != "" && strings.TrimSpace(p.Name) != "" {
			line.Name = strings.TrimSpace(p.Name)
		}
		if p.DurationMinutes != nil {
			if err := sheet.SetDuration(line.ID, *p.DurationMinutes); err != nil {
				return nil, invalid("procedures[%d]: %v", i, err)
			}
		}
		if err := sheet.SetTooth(line.ID, p.Tooth); err != nil {
			return nil, invalid("procedures[%d]: %v", i, err)
		}
	}
	for i, o := range req.SupplyOverrides {
		if err := sheet.SetSupplyOverride(o.ProcedureID, o.SKU, o.Included); err != nil {
			return nil, invalid("supply_overrides[%d]: %v", i, err)
		}
	}
	for i, m := range req.ManualSupplies {
		if err := sheet.AddManualSupply(m.ItemID, m.Quantity); err != nil {
			return nil, invalid("manual_supplies[%d]: %v", i, err)
		}
	}
	return sheet, nil
}

// -- Preview --

// Preview is the computed state of a sheet before it is saved.
type Preview struct {
	Procedures []*ProcedureLine   `json:"procedures"`
	Supplies   []SupplyRow        `json:"supplies"`
	Unresolved []UnresolvedSupply `json:"unresolved"`
	Totals     Totals             `json:"totals"`
	TotalCents int64              `json:"total_cents"`
	StockRisks []StockRisk        `json:"stock_risks"`
	Changes    []ChangeRecord     `json:"changes"`
}

// Preview evaluates a sheet against current inventory without writing.
func (s *Service) Preview(ctx context.Context, req SaveRequest) (*Preview, error) {
	inventory, err := s.Inventory.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	sheet, err := BuildSheet(req, inventory)
	if err != nil {
		return nil, err
	}
	totals, err := CalculateTotals(sheet.Lines(), req.Adjustment, req.FinalTotalOverride)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return &Preview{
		Procedures: sheet.Lines(),
		Supplies:   sheet.Supplies(),
		Unresolved: sheet.Unresolved(),
		Totals:     totals,
		TotalCents: totals.TotalCents(),
		StockRisks: EvaluateStockRisk(sheet.Supplies(), inventory, s.Inventory.LowStockDefault()),
		Changes:    sheet.Changes(),
	}, nil
}

// -- Save --

type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

type DeductionResult struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Applied   bool      `json:"applied"`
	Remaining *int      `json:"remaining,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type LowStockItem struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
}

// Outcome reports what a save wrote and which best-effort steps failed.
type Outcome struct {
	State             string             `json:"state"`
	AppointmentID     uuid.UUID          `json:"appointment_id"`
	AppointmentStatus string             `json:"appointment_status,omitempty"`
	InvoiceID         *uuid.UUID         `json:"invoice_id,omitempty"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	Total             decimal.Decimal    `json:"total"`
	TotalCents        int64              `json:"total_cents"`
	Atomic            bool               `json:"atomic"`
	Treatments        []uuid.UUID        `json:"treatments"`
	Prescriptions     []uuid.UUID        `json:"prescriptions"`
	NoteID            *uuid.UUID         `json:"note_id,omitempty"`
	Deductions        []DeductionResult  `json:"deductions"`
	LowStock          []LowStockItem     `json:"low_stock"`
	Unresolved        []UnresolvedSupply `json:"unresolved"`
	PaymentURL        string             `json:"payment_url,omitempty"`
	PaymentRequestID  string             `json:"payment_request_id,omitempty"`
	RecallID          *uuid.UUID         `json:"recall_id,omitempty"`
	Committed         []string           `json:"committed"`
	Warnings          []Warning          `json:"warnings"`
}

func (o *Outcome) warn(step string, err error) {
	o.Warnings = append(o.Warnings, Warning{Step: step, Message: err.Error()})
}

func (o *Outcome) commit(step string) {
	o.Committed = append(o.Committed, step)
}

// Complete saves a completion sheet: clinical records, invoice, inventory
// deductions and the appointment status in one transaction, followed by
// best-effort notifications, payment link, recall, audit and analytics.
func (s *Service) Complete(ctx context.Context, req SaveRequest) (*Outcome, error) {
	out := &Outcome{State: StateIdle, AppointmentID: req.AppointmentID}
	if req.AppointmentID == uuid.Nil {
		out.State = StateFailed
		return out, invalid("appointment id is required")
	}
	if req.NextVisit != "" && !scheduling.ValidRecallInterval(req.NextVisit) {
		out.State = StateFailed
		return out, invalid("invalid next_visit: %s", req.NextVisit)
	}
	if req.CreateInvoice && len(req.Procedures) == 0 {
		out.State = StateFailed
		return out, invalid("an invoice needs at least one procedure")
	}

	out.State = StateSaving
	key := fmt.Sprintf("visit:%s:%s", db.TenantFromContext(ctx), req.AppointmentID)
	held, err := s.Locker.Obtain(ctx, key, lockTTL)
	if err != nil {
		out.State = StateFailed
		if errors.Is(err, lock.ErrNotObtained) {
			return out, ErrVisitInProgress
		}
		return out, fmt.Errorf("lock appointment: %w", err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.Warn().Err(err).Str("appointment_id", req.AppointmentID.String()).Msg("failed to release visit lock")
		}
	}()

	if err := s.save(ctx, req, out); err != nil {
		out.State = StateFailed
		return out, err
	}
	out.State = StateSucceeded
	return out, nil
}

type saveState struct {
	appt      *scheduling.Appointment
	sheet     *Sheet
	totals    Totals
	inventory []*supply.InventoryItem
	risks     []StockRisk
	low       map[uuid.UUID]LowStockItem
}

func (s *Service) save(ctx context.Context, req SaveRequest, out *Outcome) error {
	appt, err := s.Appointments.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return err
	}
	switch appt.Status {
	case scheduling.StatusCompleted:
		return ErrAppointmentCompleted
	case scheduling.StatusCancelled, scheduling.StatusNoShow:
		return ErrAppointmentClosed
	}

	inventory, err := s.Inventory.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	sheet, err := BuildSheet(req, inventory)
	if err != nil {
		return err
	}
	totals, err := CalculateTotals(sheet.Lines(), req.Adjustment, req.FinalTotalOverride)
	if err != nil {
		return invalid("%v", err)
	}
	st := &saveState{appt: appt, sheet: sheet, totals: totals, inventory: inventory, low: map[uuid.UUID]LowStockItem{}}
	out.Subtotal, out.Total, out.TotalCents = totals.Subtotal, totals.Final, totals.TotalCents()
	out.Unresolved = sheet.Unresolved()

	rows := sheet.Supplies()
	if req.AutoDeduct && len(rows) > 0 {
		st.risks = EvaluateStockRisk(rows, inventory, s.Inventory.LowStockDefault())
		if len(st.risks) > 0 && !req.ConfirmStockOverride {
			return &StockError{Risks: st.risks}
		}
	}

	var committed []string
	err = s.InTx(ctx, func(ctx context.Context) error {
		committed = committed[:0]
		out.Treatments, out.Prescriptions, out.Deductions = nil, nil, nil
		out.NoteID, out.InvoiceID, out.Atomic = nil, nil, false
		steps, err := s.writeVisit(ctx, req, st, out)
		committed = steps
		return err
	})
	if err != nil {
		return err
	}
	for _, step := range committed {
		out.commit(step)
	}
	for _, w := range out.Deductions {
		if !w.Applied {
			out.Warnings = append(out.Warnings, Warning{Step: "inventory", Message: fmt.Sprintf("%s: %s", w.Name, w.Error)})
		}
	}

	s.afterCommit(ctx, req, st, out)
	return nil
}

// writeVisit performs every write of a save. It runs inside one transaction.
func (s *Service) writeVisit(ctx context.Context, req SaveRequest, st *saveState, out *Outcome) ([]string, error) {
	appt := st.appt
	var steps []string

	for _, l := range st.sheet.Lines() {
		t := &clinical.Treatment{
			AppointmentID:   appt.ID,
			PatientID:       appt.PatientID,
			DentistID:       appt.DentistID,
			ProcedureKey:    optional(l.Key),
			ProcedureName:   l.Name,
			Tooth:           optional(l.Tooth),
			Quantity:        l.Qty,
			UnitPriceCents:  ToCents(l.UnitPrice),
			DurationMinutes: l.DurationMinutes,
		}
		if err := s.Clinical.CreateTreatment(ctx, t); err != nil {
			return steps, fmt.Errorf("save treatment %q: %w", l.Name, err)
		}
		out.Treatments = append(out.Treatments, t.ID)
	}
	if len(out.Treatments) > 0 {
		steps = append(steps, "treatments")
	}

	if notes := strings.TrimSpace(req.Notes); notes != "" {
		apptID, dentistID := appt.ID, appt.DentistID
		n := &clinical.ClinicalNote{
			AppointmentID: &apptID,
			PatientID:     appt.PatientID,
			DentistID:     &dentistID,
			NoteType:      clinical.NoteClinicalOutcome,
			Content:       notes,
		}
		if err := s.Clinical.CreateNote(ctx, n); err != nil {
			return steps, fmt.Errorf("save clinical note: %w", err)
		}
		out.NoteID = &n.ID
		steps = append(steps, "clinical_note")
	}

	for _, rx := range req.Prescriptions {
		if strings.TrimSpace(rx.Medication) == "" {
			continue
		}
		apptID := appt.ID
		p := &clinical.Prescription{
			AppointmentID: &apptID,
			PatientID:     appt.PatientID,
			DentistID:     appt.DentistID,
			Medication:    rx.Medication,
			Dosage:        optional(rx.Dosage),
			Frequency:     optional(rx.Frequency),
			Duration:      optional(rx.Duration),
			Instructions:  optional(rx.Instructions),
		}
		if err := s.Clinical.CreatePrescription(ctx, p); err != nil {
			return steps, fmt.Errorf("save prescription %q: %w", rx.Medication, err)
		}
		out.Prescriptions = append(out.Prescriptions, p.ID)
	}
	if len(out.Prescriptions) > 0 {
		steps = append(steps, "prescriptions")
	}

	rows := st.sheet.Supplies()
	if req.CreateInvoice {
		if err := s.writeInvoice(ctx, req, st, rows, out); err != nil {
			return steps, err
		}
		steps = append(steps, "invoice")
		if out.Atomic {
			steps = append(steps, "inventory")
		}
	}

	if req.AutoDeduct && !out.Atomic && len(rows) > 0 {
		for _, row := range rows {
			res := DeductionResult{ItemID: row.ItemID, Name: row.Name, Quantity: row.Qty}
			var change *supply.StockChange
			err := s.Savepoint(ctx, func(ctx context.Context) error {
				var err error
				change, err = s.Inventory.Deduct(ctx, row.ItemID, row.Qty, appt.ID, req.ActorID, req.ConfirmStockOverride)
				return err
			})
			if err != nil {
				res.Error = err.Error()
				out.Deductions = append(out.Deductions, res)
				continue
			}
			res.Applied = true
			remaining := change.Item.Quantity
			res.Remaining = &remaining
			out.Deductions = append(out.Deductions, res)
			if change.Low {
				st.low[change.Item.ID] = LowStockItem{ItemID: change.Item.ID, Name: change.Item.Name, Quantity: change.Item.Quantity, Threshold: change.Threshold}
			}
		}
		steps = append(steps, "inventory")
	}

	target := scheduling.StatusConfirmed
	if req.CreateInvoice {
		target = scheduling.StatusCompleted
	}
	if appt.Status != target {
		updated, err := s.Appointments.UpdateAppointmentStatus(ctx, appt.ID, target)
		if err != nil {
			return steps, fmt.Errorf("update appointment status: %w", err)
		}
		st.appt = updated
		steps = append(steps, "appointment_status")
	}
	out.AppointmentStatus = st.appt.Status
	return steps, nil
}

func (s *Service) writeInvoice(ctx context.Context, req SaveRequest, st *saveState, rows []SupplyRow, out *Outcome) error {
	appt := st.appt
	items := invoiceItems(st.sheet.Lines())
	adj := req.Adjustment.normalized()

	if req.AutoDeduct {
		visit := billing.AtomicVisit{
			AppointmentID:   appt.ID,
			DentistID:       appt.DentistID,
			PatientID:       appt.PatientID,
			TotalCents:      st.totals.TotalCents(),
			AdjustmentType:  adj.Type,
			AdjustmentValue: adj.Value,
			Items:           items,
			Deductions:      deductions(rows),
			CreatedBy:       req.ActorID,
			AllowNegative:   req.ConfirmStockOverride,
		}
		var invoiceID uuid.UUID
		err := s.Savepoint(ctx, func(ctx context.Context) error {
			var err error
			invoiceID, err = s.Invoices.CompleteVisitAtomic(ctx, visit)
			return err
		})
		var short *billing.StockShortfallError
		switch {
		case err == nil:
			out.InvoiceID = &invoiceID
			out.Atomic = true
			for _, r := range rows {
				out.Deductions = append(out.Deductions, DeductionResult{ItemID: r.ItemID, Name: r.Name, Quantity: r.Qty, Applied: true})
			}
			return nil
		case errors.As(err, &short):
			return shortfallError(short, rows, st.inventory, s.Inventory.LowStockDefault())
		case billing.IsAtomicUnavailable(err):
			s.Logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("atomic visit completion unavailable, falling back")
		default:
			return fmt.Errorf("complete visit: %w", err)
		}
	}

	apptID, dentistID := appt.ID, appt.DentistID
	inv := &billing.Invoice{
		AppointmentID:    &apptID,
		PatientID:        appt.PatientID,
		DentistID:        &dentistID,
		TotalAmountCents: st.totals.TotalCents(),
		AdjustmentType:   adj.Type,
		AdjustmentValue:  adj.Value,
		Items:            items,
		CreatedBy:        optional(req.ActorID),
	}
	if err := s.Invoices.CreateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	out.InvoiceID = &inv.ID
	return nil
}

func invoiceItems(lines []*ProcedureLine) []*billing.InvoiceItem {
	items := make([]*billing.InvoiceItem, 0, len(lines))
	for _, l := range lines {
		unit := ToCents(l.UnitPrice)
		items = append(items, &billing.InvoiceItem{
			ProcedureKey:   optional(l.Key),
			Description:    l.Name,
			Tooth:          optional(l.Tooth),
			Quantity:       l.Qty,
			UnitPriceCents: unit,
			TotalCents:     unit * int64(l.Qty),
		})
	}
	return items
}

// deductions merges rows per item, in first-seen order, so the database
// checks each item against its full need.
func deductions(rows []SupplyRow) []billing.Deduction {
	out := make([]billing.Deduction, 0, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		if i, ok := index[r.ItemID]; ok {
			out[i].Quantity += r.Qty
			continue
		}
		index[r.ItemID] = len(out)
		out = append(out, billing.Deduction{ItemID: r.ItemID, Quantity: r.Qty})
	}
	return out
}

// shortfallError turns a stock shortfall raised during the atomic write into
// the same StockError the pre-write check returns.
func shortfallError(short *billing.StockShortfallError, rows []SupplyRow, inventory []*supply.InventoryItem, fallbackThreshold int) *StockError {
	risk := StockRisk{ItemID: short.ItemID, Need: short.Need, Have: short.Have, Threshold: fallbackThreshold}
	for _, r := range rows {
		if r.ItemID == short.ItemID {
			risk.Name = r.Name
			break
		}
	}
	for _, it := range inventory {
		if it.ID == short.ItemID {
			risk.Threshold = it.Threshold(fallbackThreshold)
			break
		}
	}
	return &StockError{Risks: []StockRisk{risk}}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// -- After commit --

func (s *Service) afterCommit(ctx context.Context, req SaveRequest, st *saveState, out *Outcome) {
	if out.Atomic {
		s.collectLowAfterAtomic(ctx, st, out)
	}
	for _, item := range st.low {
		out.LowStock = append(out.LowStock, item)
	}
	sortLow(out.LowStock)

	var dentistUser string
	var dentistErr error
	if len(out.LowStock) > 0 || (req.CreateInvoice && req.SendPaymentLink) {
		dentistUser, dentistErr = s.Directory.LinkedUserID(ctx, st.appt.DentistID)
	}

	if len(out.LowStock) > 0 {
		s.notifyLowStock(ctx, dentistUser, dentistErr, out)
	}
	if req.CreateInvoice && req.SendPaymentLink && out.InvoiceID != nil {
		s.requestPayment(ctx, st, dentistUser, out)
	}
	if req.NextVisit != "" {
		recall, err := s.Appointments.ScheduleRecall(ctx, st.appt, req.NextVisit, strings.TrimSpace(req.RecallReason))
		if err != nil {
			out.warn("recall", err)
		} else {
			out.RecallID = &recall.ID
			out.commit("recall")
		}
	}
	s.recordAudits(ctx, req, st, out)
	s.publish(ctx, req, out)
}

func (s *Service) collectLowAfterAtomic(ctx context.Context, st *saveState, out *Outcome) {
	if len(out.Deductions) == 0 {
		return
	}
	fresh, err := s.Inventory.Snapshot(ctx)
	if err != nil {
		out.warn("low_stock", fmt.Errorf("reload inventory: %w", err))
		return
	}
	touched := make(map[uuid.UUID]bool, len(out.Deductions))
	for _, d := range out.Deductions {
		touched[d.ItemID] = true
	}
	fallback := s.Inventory.LowStockDefault()
	for _, it := range fresh {
		if !touched[it.ID] {
			continue
		}
		for i := range out.Deductions {
			if out.Deductions[i].ItemID == it.ID {
				q := it.Quantity
				out.Deductions[i].Remaining = &q
			}
		}
		if it.IsLow(fallback) {
			st.low[it.ID] = LowStockItem{ItemID: it.ID, Name: it.Name, Quantity: it.Quantity, Threshold: it.Threshold(fallback)}
		}
	}
}

func (s *Service) notifyLowStock(ctx context.Context, userID string, lookupErr error, out *Outcome) {
	if s.Notifier == nil {
		return
	}
	if lookupErr != nil {
		out.warn("low_stock_notification", fmt.Errorf("find dentist user: %w", lookupErr))
		return
	}
	if userID == "" {
		out.warn("low_stock_notification", errors.New("dentist has no linked user"))
		return
	}
	sent := 0
	for _, item := range out.LowStock {
		_, err := s.Notifier.Notify(ctx, userID, inbox.TemplateLowStock, map[string]string{
			"item_name": item.Name,
			"quantity":  fmt.Sprint(item.Quantity),
			"threshold": fmt.Sprint(item.Threshold),
		}, map[string]interface{}{"item_id": item.ItemID.String()})
		if err != nil {
			out.warn("low_stock_notification", fmt.Errorf("%s: %w", item.Name, err))
			continue
		}
		sent++
	}
	if sent > 0 {
		out.commit("low_stock_notifications")
	}
}

func (s *Service) requestPayment(ctx context.Context, st *saveState, dentistUser string, out *Outcome) {
	appt := st.appt
	patientName, patientEmail := "", ""
	if p, err := s.Directory.GetPatient(ctx, appt.PatientID); err == nil {
		patientName = p.FullName()
		if p.Email != nil {
			patientEmail = *p.Email
		}
	}

	fail := func(err error) {
		out.warn("payment_link", err)
		if s.Notifier == nil || dentistUser == "" {
			return
		}
		_, nerr := s.Notifier.Notify(ctx, dentistUser, inbox.TemplatePaymentLinkFailed, map[string]string{
			"patient_name": patientName,
			"amount":       out.Total.StringFixed(2),
			"reason":       err.Error(),
		}, map[string]interface{}{"invoice_id": out.InvoiceID.String()})
		if nerr != nil {
			s.Logger.Warn().Err(nerr).Msg("failed to notify payment link failure")
		}
	}

	if s.Payments == nil {
		fail(payment.ErrDisabled)
		return
	}
	resp, err := s.Payments.CreatePaymentRequest(ctx, payment.Request{
		PatientID:    appt.PatientID.String(),
		DentistID:    appt.DentistID.String(),
		AmountCents:  out.TotalCents,
		Description:  visitDescription(st.sheet.Lines(), appt.StartTime),
		PatientEmail: patientEmail,
		InvoiceID:    out.InvoiceID.String(),
	})
	if err != nil {
		fail(err)
		return
	}
	out.PaymentURL = resp.PaymentURL
	out.PaymentRequestID = resp.PaymentRequestID
	if resp.PaymentRequestID != "" {
		if err := s.Invoices.SetPaymentRequest(ctx, *out.InvoiceID, resp.PaymentRequestID); err != nil {
			out.warn("payment_link", fmt.Errorf("store payment request: %w", err))
			return
		}
	}
	out.commit("payment_link")
}

func visitDescription(lines []*ProcedureLine, at time.Time) string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.Name)
	}
	return fmt.Sprintf("Dental visit %s: %s", at.Format("2006-01-02"), strings.Join(names, ", "))
}

func (s *Service) recordAudits(ctx context.Context, req SaveRequest, st *saveState, out *Outcome) {
	if s.Auditor == nil {
		return
	}
	apptID := st.appt.ID.String()
	record := func(action, entityType, entityID string, details map[string]interface{}) {
		if _, err := s.Auditor.Record(ctx, req.ActorID, action, entityType, entityID, details); err != nil {
			out.warn("audit", fmt.Errorf("%s: %w", action, err))
		}
	}

	if st.totals.Overridden && req.CreateInvoice && out.InvoiceID != nil {
		record(auditevent.ActionFinalTotalOverride, "invoice", out.InvoiceID.String(), map[string]interface{}{
			"appointment_id": apptID,
			"computed_total": st.totals.Computed.StringFixed(2),
			"final_total":    st.totals.Final.StringFixed(2),
		})
	}
	if len(st.risks) > 0 && req.ConfirmStockOverride {
		items := make([]map[string]interface{}, 0, len(st.risks))
		for _, r := range st.risks {
			items = append(items, map[string]interface{}{"item_id": r.ItemID.String(), "name": r.Name, "need": r.Need, "have": r.Have})
		}
		record(auditevent.ActionStockOverride, "appointment", apptID, map[string]interface{}{"items": items})
	}
	for _, c := range st.sheet.Changes() {
		action := auditevent.ActionPriceEdit
		if c.Kind == ChangeSupplyOverride {
			action = auditevent.ActionSupplyOverride
		}
		record(action, "appointment", apptID, map[string]interface{}{
			"procedure_id":  c.LineID,
			"procedure_key": c.Key,
			"sku":           c.SKU,
			"from":          c.From,
			"to":            c.To,
			"at":            c.At.Format(time.RFC3339),
		})
	}
}

func (s *Service) publish(ctx context.Context, req SaveRequest, out *Outcome) {
	eventType := events.TypeVisitSaved
	if req.CreateInvoice {
		eventType = events.TypeVisitCompleted
	}
	payload := map[string]interface{}{
		"procedures":  len(out.Treatments),
		"total_cents": out.TotalCents,
		"atomic":      out.Atomic,
		"status":      out.AppointmentStatus,
	}
	if out.InvoiceID != nil {
		payload["invoice_id"] = out.InvoiceID.String()
	}
	evt := events.New(eventType, db.TenantFromContext(ctx), out.AppointmentID.String(), payload)
	evt.ActorID = req.ActorID
	if err := s.Events.Publish(ctx, evt); err != nil {
		out.warn("analytics", err)
		return
	}
	out.commit("analytics")
}
