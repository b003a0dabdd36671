package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// Selectors of the patient management UI.
var (
	toolbarSel     = browser.CSS("mat-toolbar")
	addButtonSel   = browser.CSS("button[routerlink='/patients/add']")
	listButtonSel  = browser.CSS("button[routerlink='/patients']")
	cardTitleSel   = browser.CSS("mat-card-title")
	cardContentSel = browser.CSS("mat-card-content")
	editButtonSel  = browser.XPath("//button[contains(text(), 'Modifier')]")
	confirmSel     = browser.CSS(".swal2-confirm")
	formSubmitSel  = browser.CSS("button[type='submit']")
)

func formControl(tag, name string) browser.Selector {
	return browser.CSS(fmt.Sprintf("%s[formcontrolname='%s']", tag, name))
}

func matOption(value string) browser.Selector {
	return browser.XPath(fmt.Sprintf("//mat-option[@value='%s']", value))
}

// PatientFixture is the entity created, read, updated and deleted by the flow.
type PatientFixture struct {
	Nom           string
	Prenom        string
	DateNaissance string
	Sexe          string
	Taille        string
	Poids         string
	TailleUpdated string
	ContactType   string
	Contact       string
}

// NewPatientFixture generates a patient whose names are unique per run.
func NewPatientFixture(unix int64) PatientFixture {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return PatientFixture{
		Nom:           fmt.Sprintf("Test%d", unix),
		Prenom:        fmt.Sprintf("Patient%d%s", unix, suffix),
		DateNaissance: "2000-01-01",
		Sexe:          "HOMME",
		Taille:        "175",
		Poids:         "70",
		TailleUpdated: "180",
		ContactType:   "EMAIL",
		Contact:       "test@example.com",
	}
}

// ListItem selects the list entry showing the patient.
func (p PatientFixture) ListItem() browser.Selector {
	return browser.XPath(fmt.Sprintf("//mat-list-item[contains(., '%s') and contains(., '%s')]", p.Nom, p.Prenom))
}

// DeleteButton selects the delete control of the patient's list entry.
func (p PatientFixture) DeleteButton() browser.Selector {
	return browser.XPath(p.ListItem().Value + "//button[@matlistitemmeta]")
}

// Names of the CRUD results, in execution order.
const (
	CRUDLogin  = "CRUD - Connexion"
	CRUDCreate = "CRUD - Création du patient"
	CRUDRead   = "CRUD - Lecture du patient"
	CRUDUpdate = "CRUD - Mise à jour du patient"
	CRUDList   = "CRUD - Présence dans la liste"
	CRUDDelete = "CRUD - Suppression du patient"
	CRUDLogout = "CRUD - Déconnexion"
)

// SkippedDetails is recorded for steps whose prerequisite failed.
const SkippedDetails = "étape précédente échouée"

type crudStep struct {
	name     string
	requires []string
	run      func(ctx context.Context) (results.Outcome, error)
}

// crudFlow carries the state shared by the CRUD steps.
type crudFlow struct {
	r         *Runner
	patient   PatientFixture
	patientID string
	shot      string
}

// CRUDSteps lists the CRUD result names with their prerequisites.
func CRUDSteps() [][2]string {
	f := &crudFlow{}
	var out [][2]string
	for _, s := range f.steps() {
		out = append(out, [2]string{s.name, strings.Join(s.requires, ", ")})
	}
	return out
}

// RunCRUD logs in and drives the patient entity through create, read, update,
// list, delete and logout. Each step records one result; a step whose
// prerequisite failed is recorded as failed without running.
func (r *Runner) RunCRUD(ctx context.Context) ([]results.TestResult, error) {
	start := r.recorder.Len()
	f := &crudFlow{r: r, patient: NewPatientFixture(r.now().Unix())}
	r.logger.Info("Starting CRUD flow.", zap.String("nom", f.patient.Nom), zap.String("prenom", f.patient.Prenom))

	passed := map[string]bool{}
	for _, step := range f.steps() {
		if err := ctx.Err(); err != nil {
			return r.recordedSince(start), fmt.Errorf("CRUD flow interrupted before %q: %w", step.name, err)
		}
		r.narrator.Step("%s", step.name)

		if missing := firstMissing(step.requires, passed); missing != "" {
			tr := r.recorder.Record(step.name, results.Fail(SkippedDetails+": "+missing), "")
			r.narrate(tr)
			continue
		}

		outcome, fatal := f.runStep(ctx, step)
		tr := r.recorder.Record(step.name, outcome, f.shot)
		r.narrate(tr)
		passed[step.name] = tr.Passed

		if fatal != nil {
			return r.recordedSince(start), fmt.Errorf("CRUD step %q: %w", step.name, fatal)
		}
	}
	return r.recordedSince(start), nil
}

func firstMissing(requires []string, passed map[string]bool) string {
	for _, name := range requires {
		if !passed[name] {
			return name
		}
	}
	return ""
}

func (f *crudFlow) runStep(ctx context.Context, step crudStep) (outcome results.Outcome, fatal error) {
	f.shot = ""
	defer func() {
		if p := recover(); p != nil {
			f.r.logger.Error("CRUD step panicked.", zap.String("step", step.name), zap.Any("panic", p))
			outcome = results.Errored(fmt.Errorf("panic: %v", p))
			f.shot = f.r.captureFailure(ctx, step.name)
		}
	}()

	outcome, err := step.run(ctx)
	if err != nil {
		if isFatal(ctx, err) {
			return results.Errored(err), err
		}
		f.r.logger.Warn("CRUD step failed.", zap.String("step", step.name), zap.Error(err))
		outcome = results.Errored(err)
	}
	if !outcome.Passed() && f.shot == "" {
		f.shot = f.r.captureFailure(ctx, step.name)
	}
	return outcome, nil
}

// checkpoint saves one of the numbered CRUD screenshots and attaches it to the
// current step.
func (f *crudFlow) checkpoint(ctx context.Context, name string) {
	if path := f.r.captureAs(ctx, name); path != "" {
		f.shot = path
	}
}

func (f *crudFlow) steps() []crudStep {
	return []crudStep{
		{name: CRUDLogin, run: f.login},
		{name: CRUDCreate, requires: []string{CRUDLogin}, run: f.create},
		{name: CRUDRead, requires: []string{CRUDCreate}, run: f.read},
		{name: CRUDUpdate, requires: []string{CRUDRead}, run: f.update},
		{name: CRUDList, requires: []string{CRUDCreate}, run: f.list},
		{name: CRUDDelete, requires: []string{CRUDList}, run: f.delete},
		{name: CRUDLogout, requires: []string{CRUDLogin}, run: f.logout},
	}
}

// click waits for sel to be interactable, then clicks it.
func (f *crudFlow) click(ctx context.Context, sel browser.Selector) error {
	if err := f.r.nav.WaitInteractable(ctx, sel); err != nil {
		return err
	}
	return f.r.session.Click(ctx, sel)
}

// selectOption opens a mat-select and picks value.
func (f *crudFlow) selectOption(ctx context.Context, control, value string) error {
	if err := f.click(ctx, formControl("mat-select", control)); err != nil {
		return err
	}
	return f.click(ctx, matOption(value))
}

func (f *crudFlow) login(ctx context.Context) (results.Outcome, error) {
	creds := f.r.cfg.Credentials()
	if err := f.r.nav.ToLogin(ctx, f.r.baseURL); err != nil {
		return results.Outcome{}, err
	}
	if _, err := f.r.Submit(ctx, creds.Username, creds.Password); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitPresent(ctx, toolbarSel); err != nil {
		return results.Outcome{}, err
	}
	f.checkpoint(ctx, "1_login_success.png")
	return results.Pass("Connexion réussie"), nil
}

func (f *crudFlow) create(ctx context.Context) (results.Outcome, error) {
	p := f.patient
	s := f.r.session

	if err := f.click(ctx, addButtonSel); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitInteractable(ctx, formControl("input", "nom")); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, formControl("input", "nom"), p.Nom); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, formControl("input", "prenom"), p.Prenom); err != nil {
		return results.Outcome{}, err
	}
	if err := f.selectOption(ctx, "sexe", p.Sexe); err != nil {
		return results.Outcome{}, err
	}
	// The date picker ignores typed keys.
	if err := s.SetValue(ctx, formControl("input", "dateNaissance"), p.DateNaissance); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, formControl("input", "taille"), p.Taille); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, formControl("input", "poids"), p.Poids); err != nil {
		return results.Outcome{}, err
	}
	if err := f.selectOption(ctx, "type", p.ContactType); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, formControl("input", "contact"), p.Contact); err != nil {
		return results.Outcome{}, err
	}

	f.checkpoint(ctx, "2_create_form_filled.png")
	if err := s.Click(ctx, formSubmitSel); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitPresent(ctx, cardTitleSel); err != nil {
		return results.Outcome{}, err
	}
	f.checkpoint(ctx, "3_create_success.png")

	title, err := s.Text(ctx, cardTitleSel)
	if err != nil {
		return results.Outcome{}, err
	}
	if !strings.Contains(title, p.Prenom) || !strings.Contains(title, p.Nom) {
		return results.Fail(fmt.Sprintf("Les données du patient ne correspondent pas: titre %q", title)), nil
	}

	u, err := s.CurrentURL(ctx)
	if err != nil {
		return results.Outcome{}, err
	}
	f.patientID = u[strings.LastIndex(u, "/")+1:]
	return results.Pass(fmt.Sprintf("Patient créé: %s %s (id %s)", p.Prenom, p.Nom, f.patientID)), nil
}

func (f *crudFlow) read(ctx context.Context) (results.Outcome, error) {
	content, err := f.r.session.Text(ctx, cardContentSel)
	if err != nil {
		return results.Outcome{}, err
	}
	wantTaille := "Taille : " + f.patient.Taille
	wantPoids := "Poids : " + f.patient.Poids
	if !strings.Contains(content, wantTaille) || !strings.Contains(content, wantPoids) {
		return results.Fail(fmt.Sprintf("Les détails du patient ne sont pas correctement affichés (attendu %q et %q)", wantTaille, wantPoids)), nil
	}
	return results.Pass("Détails du patient affichés correctement"), nil
}

func (f *crudFlow) update(ctx context.Context) (results.Outcome, error) {
	s := f.r.session
	taille := formControl("input", "taille")

	if err := f.click(ctx, editButtonSel); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitInteractable(ctx, taille); err != nil {
		return results.Outcome{}, err
	}
	if err := s.Clear(ctx, taille); err != nil {
		return results.Outcome{}, err
	}
	if err := s.SendKeys(ctx, taille, f.patient.TailleUpdated); err != nil {
		return results.Outcome{}, err
	}
	f.checkpoint(ctx, "4_update_form_filled.png")
	if err := s.Click(ctx, formSubmitSel); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitPresent(ctx, cardTitleSel); err != nil {
		return results.Outcome{}, err
	}

	// The details card may still show the previous values while the view
	// refreshes.
	want := "Taille : " + f.patient.TailleUpdated
	if err := f.r.nav.WaitText(ctx, cardContentSel, want); err != nil {
		if isFatal(ctx, err) || !errors.Is(err, browser.ErrWaitTimeout) {
			return results.Outcome{}, err
		}
		return results.Fail("Les modifications n'ont pas été enregistrées (attendu " + want + ")"), nil
	}
	f.checkpoint(ctx, "5_update_success.png")
	return results.Pass("Patient mis à jour: " + want), nil
}

func (f *crudFlow) list(ctx context.Context) (results.Outcome, error) {
	if err := f.click(ctx, listButtonSel); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitPresent(ctx, f.patient.ListItem()); err != nil {
		if isFatal(ctx, err) {
			return results.Outcome{}, err
		}
		return results.Fail("Patient non trouvé dans la liste"), nil
	}
	return results.Pass("Patient présent dans la liste"), nil
}

func (f *crudFlow) delete(ctx context.Context) (results.Outcome, error) {
	if err := f.click(ctx, f.patient.DeleteButton()); err != nil {
		return results.Outcome{}, err
	}
	f.checkpoint(ctx, "6_delete_confirmation.png")

	// SweetAlert asks for confirmation, then acknowledges the deletion.
	for range 2 {
		if err := f.click(ctx, confirmSel); err != nil {
			return results.Outcome{}, err
		}
	}
	if err := f.r.nav.WaitAbsent(ctx, f.patient.ListItem()); err != nil {
		if isFatal(ctx, err) {
			return results.Outcome{}, err
		}
		f.checkpoint(ctx, "7_delete_success.png")
		return results.Fail("Le patient n'a pas été supprimé"), nil
	}
	f.checkpoint(ctx, "7_delete_success.png")
	return results.Pass("Patient supprimé"), nil
}

func (f *crudFlow) logout(ctx context.Context) (results.Outcome, error) {
	if err := f.click(ctx, f.r.nav.LogoutControl()); err != nil {
		return results.Outcome{}, err
	}
	if err := f.r.nav.WaitURLContains(ctx, "login"); err != nil {
		if isFatal(ctx, err) {
			return results.Outcome{}, err
		}
		return results.Fail("La déconnexion a échoué"), nil
	}
	f.checkpoint(ctx, "8_logout_success.png")
	return results.Pass("Déconnexion réussie"), nil
}
