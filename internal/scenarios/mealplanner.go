// Package scenarios holds the built-in journeys for the meal planner
// application.
package scenarios

import (
	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/scenario"
)

// Routes.
const (
	LoginPath   = "/login"
	HomePath    = "/"
	ProfilePath = "/profile"
	BrowsePath  = "/meals/browse"
)

// Locators the application exposes.
var (
	EmailField    = driver.ByLabel("E-post")
	PasswordField = driver.ByLabel("Passord")
	LoginButton   = driver.ByRole("button", "Logg inn")

	ProfileHeading = driver.ByRole("heading", "Brukerprofil")
	CalendarLink   = driver.ByRole("link", "Kalender")

	LibraryHeading = driver.ByRole("heading", "Middagsbibliotek")
	MealCard       = driver.ByTestID("meal-card")
	AddFavorite    = driver.ByRole("button", "Legg til i favoritter").In(MealCard)
	RemoveFavorite = driver.ByRole("button", "Fjern fra favoritter").In(MealCard)
	SortSelect     = driver.ByRole("combobox", "")

	CalendarDay     = driver.ByTestID("calendar-day")
	DayDialogHeader = driver.ByRolePattern("heading", "Velg middag for.*")
	AllMealsTab     = driver.ByRole("button", "Alle Middager")
	FavoritesTab    = driver.ByRole("button", "Favoritter").Exactly()
	EditTodayButton = driver.ByRole("button", "Rediger kun for i dag")
	EditHeading     = driver.ByRolePattern("heading", "Rediger:.*")

	ModalContent  = driver.ByTestID("modal-content")
	ModalBackdrop = driver.ByTestID("modal-backdrop")
)

// dayIndex picks a calendar cell well inside the current month.
const dayIndex = 5

// Credentials log a test user in.
type Credentials struct {
	Email    string
	Password string
}

// Login signs in and waits for the home route.
func Login(c Credentials) []scenario.Step {
	return []scenario.Step{
		scenario.Navigate(LoginPath),
		scenario.Fill(EmailField, c.Email),
		scenario.Fill(PasswordField, c.Password),
		scenario.Click(LoginButton),
		scenario.ExpectURL(HomePath),
	}
}

// openLibrary navigates to the meal library and waits for the first card.
func openLibrary() []scenario.Step {
	return []scenario.Step{
		scenario.Navigate(BrowsePath),
		scenario.ExpectVisible(LibraryHeading),
		scenario.ExpectVisible(MealCard),
	}
}

func openMealModal() []scenario.Step {
	return []scenario.Step{
		scenario.Click(MealCard),
		scenario.ExpectVisible(ModalContent),
	}
}

func openDayDialog() []scenario.Step {
	return []scenario.Step{
		scenario.Navigate(HomePath),
		scenario.Click(CalendarDay.At(dayIndex)),
		scenario.ExpectVisible(DayDialogHeader),
	}
}

// Fragments returns the shared step sequences by name, for scenario files
// to include.
func Fragments(c Credentials) map[string][]scenario.Step {
	return map[string][]scenario.Step{
		"login":           Login(c),
		"open_library":    openLibrary(),
		"open_meal_modal": openMealModal(),
		"open_day_dialog": openDayDialog(),
	}
}

// All returns the built-in scenarios in registration order.
func All(c Credentials) []scenario.Scenario {
	login := Login(c)

	return []scenario.Scenario{
		scenario.New("login", "sign in with the test user and land on the home route",
			login...,
		),

		scenario.New("profile", "profile page shows its heading and calendar navigation",
			scenario.Compose(login, []scenario.Step{
				scenario.Navigate(ProfilePath),
				scenario.ExpectVisible(ProfileHeading),
				scenario.ExpectVisible(CalendarLink),
				scenario.Screenshot("profile_page"),
			})...,
		),

		scenario.New("meal-favorite-toggle", "favoriting the first meal card can be reversed",
			scenario.Compose(login, openLibrary(), []scenario.Step{
				scenario.Click(AddFavorite),
				scenario.ExpectVisible(RemoveFavorite),
				scenario.Screenshot("meal_library"),
				scenario.Click(RemoveFavorite),
				scenario.ExpectVisible(AddFavorite),
			})...,
		),

		scenario.New("meal-library-sort", "meal library sorts by favorites",
			scenario.Compose(login, openLibrary(), []scenario.Step{
				scenario.Select(SortSelect, "favorites"),
				scenario.ExpectVisible(MealCard),
				scenario.Screenshot("meal_library_sorted"),
			})...,
		),

		scenario.New("calendar-tabs", "calendar day dialog offers all meals and favorites tabs",
			scenario.Compose(login, openDayDialog(), []scenario.Step{
				scenario.ExpectVisible(AllMealsTab),
				scenario.ExpectVisible(FavoritesTab),
				scenario.Screenshot("calendar_tabs"),
				scenario.Press("Escape"),
			})...,
		),

		scenario.New("edit-for-today", "a planned meal can be edited for today only",
			scenario.Compose(login, openDayDialog(), []scenario.Step{
				scenario.Click(MealCard),
				scenario.Click(EditTodayButton),
				scenario.ExpectVisible(EditHeading),
				scenario.Screenshot("edit_modal"),
			})...,
		),

		scenario.New("meal-card-modal", "meal card opens a modal over a backdrop",
			scenario.Compose(login, openLibrary(), []scenario.Step{
				scenario.Screenshot("meal_card"),
				scenario.Click(MealCard),
				scenario.ExpectVisible(ModalContent),
				scenario.ExpectVisible(ModalBackdrop),
				scenario.Screenshot("modal_backdrop"),
			})...,
		),

		scenario.New("modal-close-escape", "Escape closes the meal modal",
			scenario.Compose(login, openLibrary(), openMealModal(), []scenario.Step{
				scenario.Press("Escape"),
				scenario.ExpectHidden(ModalContent),
			})...,
		),

		scenario.New("modal-close-backdrop", "clicking the backdrop closes the meal modal",
			scenario.Compose(login, openLibrary(), openMealModal(), []scenario.Step{
				scenario.ClickAt(ModalBackdrop, driver.Point{X: 10, Y: 10}, true),
				scenario.ExpectHidden(ModalContent),
			})...,
		),
	}
}
