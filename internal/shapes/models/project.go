package models

// ============================================================
// Project Scatter Data
// ============================================================

// PlotPoint: точка рассеяния проекта. Значения приходят строками, как их
// отдаёт исходный API.
type PlotPoint struct {
	Label string `json:"Label"`
	X     string `json:"X"`
	Y     string `json:"Y"`
	Size  string `json:"Size"`
	Color string `json:"Color"`
}
