// Package nav derives the navigation menu from the session and the current
// location.
package nav

import (
	"github.com/seatpredictor/seatweb/pkg/models"
)

// ItemsFor computes the visible navigation links and marks the active one.
// It is a pure function of (session state, current path).
//
// Fixed precedence: the admin view shows only its dashboard link; an
// authenticated student sees Home, About and Result; everyone else sees
// Login and About.
func ItemsFor(s models.SessionState, currentPath string) []models.NavItem {
	var items []models.NavItem
	switch {
	case currentPath == models.PathAdminHome:
		items = []models.NavItem{
			{Label: "Dashboard", Path: models.PathAdminHome},
		}
	case s.IsAuthenticated && s.Role == models.RoleStudent:
		items = []models.NavItem{
			{Label: "Home", Path: models.PathHome},
			{Label: "About", Path: models.PathAbout},
			{Label: "Result", Path: models.PathResult},
		}
	default:
		items = []models.NavItem{
			{Label: "Login", Path: models.PathLogin},
			{Label: "About", Path: models.PathAbout},
		}
	}
	for i := range items {
		items[i].IsActive = items[i].Path == currentPath
	}
	return items
}

// ShowLogout reports whether the logout action is exposed next to the menu.
func ShowLogout(s models.SessionState) bool {
	return s.IsAuthenticated
}
