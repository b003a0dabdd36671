package scenario

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authprobe/internal/artifacts"
	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/browser/stub"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/results"
)

type fakePatient struct {
	id            string
	nom, prenom   string
	taille, poids string
	sexe, contact string
	dateNaissance string
}

// patientUI emulates the patient pages on top of the stub login app.
type patientUI struct {
	patients     map[string]*fakePatient
	nextID       int
	editing      string
	confirmStage int
	pendingID    string
	keepOnDelete bool
	selected     map[string]string

	// staleReads is how many times the details card keeps its previous
	// content after an edit is saved.
	staleReads int
	staleText  string
}

func newPatientUI() *patientUI {
	return &patientUI{patients: map[string]*fakePatient{}, selected: map[string]string{}}
}

func (ui *patientUI) chrome(p *stub.Page) {
	p.Set(toolbarSel, &stub.Element{Text: "Gestion des patients"})
	p.Set(browser.ID("logout"), &stub.Element{Text: "Déconnexion"})
}

func (ui *patientUI) renderList(p *stub.Page) {
	p.Reset(baseURL + "/patients")
	ui.chrome(p)
	p.Set(addButtonSel, &stub.Element{Text: "Ajouter"})
	for _, pt := range ui.patients {
		fx := PatientFixture{Nom: pt.nom, Prenom: pt.prenom}
		p.Set(fx.ListItem(), &stub.Element{Text: pt.prenom + " " + pt.nom})
		p.Set(fx.DeleteButton(), &stub.Element{})
	}
}

func (ui *patientUI) renderForm(p *stub.Page, pt *fakePatient) {
	if pt == nil {
		p.Reset(baseURL + "/patients/add")
		ui.editing = ""
		pt = &fakePatient{}
	} else {
		p.Reset(baseURL + "/patients/edit/" + pt.id)
		ui.editing = pt.id
	}
	ui.chrome(p)
	ui.selected = map[string]string{"sexe": pt.sexe, "type": "EMAIL"}
	for name, value := range map[string]string{
		"nom": pt.nom, "prenom": pt.prenom, "dateNaissance": pt.dateNaissance,
		"taille": pt.taille, "poids": pt.poids, "contact": pt.contact,
	} {
		p.Set(formControl("input", name), &stub.Element{Value: value})
	}
	p.Set(formControl("mat-select", "sexe"), &stub.Element{})
	p.Set(formControl("mat-select", "type"), &stub.Element{})
	p.Set(formSubmitSel, &stub.Element{Text: "Enregistrer"})
}

func (ui *patientUI) renderDetails(p *stub.Page, pt *fakePatient) {
	p.Reset(baseURL + "/patients/" + pt.id)
	ui.chrome(p)
	p.Set(cardTitleSel, &stub.Element{Text: pt.prenom + " " + pt.nom})
	p.Set(cardContentSel, &stub.Element{Text: fmt.Sprintf("Taille : %s\nPoids : %s\nSexe : %s", pt.taille, pt.poids, pt.sexe)})
	p.Set(editButtonSel, &stub.Element{Text: "Modifier"})
	p.Set(listButtonSel, &stub.Element{Text: "Liste"})
}

func (ui *patientUI) save(p *stub.Page) {
	value := func(name string) string { return p.Elements[formControl("input", name)].Value }
	pt, ok := ui.patients[ui.editing]
	if ok && ui.staleReads > 0 {
		ui.staleText = fmt.Sprintf("Taille : %s\nPoids : %s\nSexe : %s", pt.taille, pt.poids, pt.sexe)
	}
	if !ok {
		ui.nextID++
		pt = &fakePatient{id: fmt.Sprint(ui.nextID)}
		ui.patients[pt.id] = pt
	}
	pt.nom, pt.prenom = value("nom"), value("prenom")
	pt.taille, pt.poids = value("taille"), value("poids")
	pt.contact, pt.dateNaissance = value("contact"), value("dateNaissance")
	pt.sexe = ui.selected["sexe"]
	ui.renderDetails(p, pt)
}

// install layers the patient pages over the login app already wired into s.
func (ui *patientUI) install(s *stub.Session) {
	login := s.OnClick
	s.OnClick = func(p *stub.Page, sel browser.Selector) {
		switch {
		case sel == formSubmitSel && strings.Contains(p.URL, "/patients/"):
			ui.save(p)
		case sel == addButtonSel:
			ui.renderForm(p, nil)
		case sel == editButtonSel:
			id := p.URL[strings.LastIndex(p.URL, "/")+1:]
			ui.renderForm(p, ui.patients[id])
		case sel == listButtonSel:
			ui.renderList(p)
		case sel == formControl("mat-select", "sexe"):
			p.Set(matOption("HOMME"), &stub.Element{})
			p.Set(matOption("FEMME"), &stub.Element{})
		case sel == formControl("mat-select", "type"):
			p.Set(matOption("EMAIL"), &stub.Element{})
		case sel == matOption("HOMME"):
			ui.selected["sexe"] = "HOMME"
		case sel == matOption("EMAIL"):
			ui.selected["type"] = "EMAIL"
		case sel == confirmSel:
			ui.confirm(p)
		case sel.By == browser.ByXPath && strings.HasSuffix(sel.Value, "//button[@matlistitemmeta]"):
			for id, pt := range ui.patients {
				if (PatientFixture{Nom: pt.nom, Prenom: pt.prenom}).DeleteButton() == sel {
					ui.pendingID = id
				}
			}
			ui.confirmStage = 1
			p.Set(confirmSel, &stub.Element{Text: "Oui, supprimer"})
		default:
			login(p, sel)
			if strings.HasSuffix(p.URL, "/patients") {
				ui.renderList(p)
			}
		}
	}
}

func (ui *patientUI) confirm(p *stub.Page) {
	switch ui.confirmStage {
	case 1:
		if !ui.keepOnDelete {
			delete(ui.patients, ui.pendingID)
		}
		ui.confirmStage = 2
		p.Set(confirmSel, &stub.Element{Text: "OK"})
	case 2:
		ui.confirmStage = 0
		ui.renderList(p)
	}
}

func newCRUDHarness(t *testing.T) (*harness, *patientUI, *artifacts.Capturer) {
	t.Helper()
	capturer, err := artifacts.NewCapturer(config.ArtifactsConfig{Enabled: true, ScreenshotsDir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	h := newHarness(t, testConfig(), stub.SecureApp(baseURL, "admin", "password123"), WithCapturer(capturer))
	ui := newPatientUI()
	ui.install(h.session)
	return h, ui, capturer
}

func TestRunCRUD(t *testing.T) {
	h, ui, capturer := newCRUDHarness(t)

	got, err := h.runner.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)

	names := []string{CRUDLogin, CRUDCreate, CRUDRead, CRUDUpdate, CRUDList, CRUDDelete, CRUDLogout}
	for n, tr := range got {
		assert.Equal(t, names[n], tr.Name)
		assert.True(t, tr.Passed, "%s: %s", tr.Name, tr.Details)
	}
	assert.Empty(t, ui.patients, "patient should be deleted")
	assert.Contains(t, got[1].Details, "(id 1)")
	assert.Equal(t, "Patient mis à jour: Taille : 180", got[3].Details)

	shot := func(name string) string { return filepath.Join(capturer.Dir(), name) }
	assert.Equal(t, shot("1_login_success.png"), got[0].Screenshot)
	assert.Equal(t, shot("3_create_success.png"), got[1].Screenshot)
	assert.Empty(t, got[2].Screenshot)
	assert.Equal(t, shot("5_update_success.png"), got[3].Screenshot)
	assert.Equal(t, shot("7_delete_success.png"), got[5].Screenshot)
	assert.Equal(t, shot("8_logout_success.png"), got[6].Screenshot)
	for _, name := range []string{
		"1_login_success.png", "2_create_form_filled.png", "3_create_success.png",
		"4_update_form_filled.png", "5_update_success.png", "6_delete_confirmation.png",
		"7_delete_success.png", "8_logout_success.png",
	} {
		assert.FileExists(t, shot(name))
	}
	assert.Contains(t, h.session.Snapshot().URL, "/login")
}

func TestRunCRUDSkipsDependentSteps(t *testing.T) {
	h, _, _ := newCRUDHarness(t)
	h.session.FailOn("Click:"+addButtonSel.String(), errors.New("element click intercepted"))

	got, err := h.runner.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)

	assert.True(t, got[0].Passed)
	assert.False(t, got[1].Passed)
	assert.Equal(t, "Erreur: element click intercepted", got[1].Details)
	assert.NotEmpty(t, got[1].Screenshot)
	for _, tr := range got[2:6] {
		assert.False(t, tr.Passed, tr.Name)
		assert.True(t, strings.HasPrefix(tr.Details, SkippedDetails), tr.Details)
	}
	assert.True(t, got[6].Passed, "logout only needs the login")
}

func TestRunCRUDDeleteNotApplied(t *testing.T) {
	h, ui, _ := newCRUDHarness(t)
	ui.keepOnDelete = true

	got, err := h.runner.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.False(t, got[5].Passed)
	assert.Equal(t, "Le patient n'a pas été supprimé", got[5].Details)
	assert.True(t, got[6].Passed)
}

func TestRunCRUDLoginFailure(t *testing.T) {
	cfg := testConfig()
	cfg.CredentialsCfg.Password = "wrong"
	h := newHarness(t, cfg, stub.SecureApp(baseURL, "admin", "password123"))
	newPatientUI().install(h.session)

	got, err := h.runner.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.False(t, got[0].Passed)
	assert.Contains(t, got[0].Details, "css=mat-toolbar present")
	assert.Equal(t, SkippedDetails+": "+CRUDLogin, got[1].Details)
	assert.Equal(t, SkippedDetails+": "+CRUDCreate, got[2].Details)
	assert.Equal(t, SkippedDetails+": "+CRUDRead, got[3].Details)
	assert.Equal(t, SkippedDetails+": "+CRUDLogin, got[6].Details)
	for _, tr := range got[1:] {
		assert.False(t, tr.Passed, tr.Name)
	}
}

// refreshingSession serves the stale details card until the UI has refreshed.
type refreshingSession struct {
	*stub.Session
	ui *patientUI
}

func (s *refreshingSession) Text(ctx context.Context, sel browser.Selector) (string, error) {
	if sel == cardContentSel && s.ui.staleText != "" && s.ui.staleReads > 0 {
		s.ui.staleReads--
		return s.ui.staleText, nil
	}
	return s.Session.Text(ctx, sel)
}

func TestRunCRUDUpdateWaitsForRefresh(t *testing.T) {
	s := stub.New()
	stub.SecureApp(baseURL, "admin", "password123").Install(s)
	ui := newPatientUI()
	ui.staleReads = 3
	ui.install(s)
	rec := results.NewRecorder(results.WithClock(func() time.Time { return fixedNow }))
	r, err := NewRunner(testConfig(), zaptest.NewLogger(t), &refreshingSession{Session: s, ui: ui}, rec,
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	got, err := r.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.True(t, got[3].Passed, got[3].Details)
	assert.Equal(t, "Patient mis à jour: Taille : 180", got[3].Details)
	assert.Zero(t, ui.staleReads)
}

func TestRunCRUDUpdateNotSaved(t *testing.T) {
	s := stub.New()
	stub.SecureApp(baseURL, "admin", "password123").Install(s)
	ui := newPatientUI()
	ui.staleReads = 1 << 20
	ui.install(s)
	rec := results.NewRecorder(results.WithClock(func() time.Time { return fixedNow }))
	r, err := NewRunner(testConfig(), zaptest.NewLogger(t), &refreshingSession{Session: s, ui: ui}, rec,
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	got, err := r.RunCRUD(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.False(t, got[3].Passed)
	assert.Equal(t, "Les modifications n'ont pas été enregistrées (attendu Taille : 180)", got[3].Details)
	assert.True(t, got[4].Passed, "the list step does not depend on the update outcome")
}

func TestNewPatientFixtureIsUnique(t *testing.T) {
	a := NewPatientFixture(1700000000)
	b := NewPatientFixture(1700000000)
	assert.Equal(t, "Test1700000000", a.Nom)
	assert.True(t, strings.HasPrefix(a.Prenom, "Patient1700000000"))
	assert.Len(t, a.Prenom, len("Patient1700000000")+4)
	assert.NotEqual(t, a.Prenom, b.Prenom)
}

func TestCRUDSteps(t *testing.T) {
	steps := CRUDSteps()
	require.Len(t, steps, 7)
	assert.Equal(t, [2]string{CRUDLogin, ""}, steps[0])
	assert.Equal(t, [2]string{CRUDLogout, CRUDLogin}, steps[6])
}
