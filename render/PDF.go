// Package render draws a quadtree and its points as a PDF page
package render

import (
	"errors"
	"io"

	"github.com/jung-kurt/gofpdf"

	"geeo.io/QuadServer/quad"
)

// ErrNilTree is returned when there is nothing to draw
var ErrNilTree = errors.New("render: nil tree")

const (
	pageSide = 576.0 // longest side of the drawing, in points
	margin   = 18.0
	dotSize  = 1.5
)

type rgb struct{ r, g, b int }

var (
	nodeColor  = rgb{0, 0, 0}
	pointColor = rgb{220, 30, 30}
	queryColor = rgb{30, 30, 220}
	foundColor = rgb{30, 160, 30}
)

// PlotOptions lists what to draw over the node boundaries
type PlotOptions[T quad.Coord] struct {
	Points []quad.Point[T] // red
	Query  *quad.Rect[T]   // blue, transparent
	Found  []quad.Point[T] // green, drawn last
	Title  string
}

// PDF writes a single page PDF with every node boundary under root.
// The page has the proportions of the root boundary, y grows downward like
// in the tree.
func PDF[T quad.Coord](w io.Writer, root quad.View[T], opts PlotOptions[T]) error {
	if root == nil {
		return ErrNilTree
	}
	b := root.Boundary()
	bw, bh := float64(b.Width), float64(b.Height)
	scale := pageSide / bw
	if bh > bw {
		scale = pageSide / bh
	}
	toPage := func(x, y T) (float64, float64) {
		return margin + (float64(x)-float64(b.X))*scale, margin + (float64(y)-float64(b.Y))*scale
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: bw*scale + 2*margin, Ht: bh*scale + 2*margin},
	})
	pdf.SetTitle(opts.Title, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetDrawColor(nodeColor.r, nodeColor.g, nodeColor.b)
	pdf.SetLineWidth(0.3)
	quad.Walk(root, func(node quad.View[T]) bool {
		r := node.Boundary()
		x, y := toPage(r.X, r.Y)
		pdf.Rect(x, y, float64(r.Width)*scale, float64(r.Height)*scale, "D")
		return true
	})

	dots := func(points []quad.Point[T], c rgb) {
		pdf.SetFillColor(c.r, c.g, c.b)
		for _, p := range points {
			x, y := toPage(p.X, p.Y)
			pdf.Circle(x, y, dotSize, "F")
		}
	}
	dots(opts.Points, pointColor)

	if opts.Query != nil {
		q := opts.Query
		x, y := toPage(q.X, q.Y)
		pdf.SetAlpha(0.3, "Normal")
		pdf.SetFillColor(queryColor.r, queryColor.g, queryColor.b)
		pdf.Rect(x, y, float64(q.Width)*scale, float64(q.Height)*scale, "F")
		pdf.SetAlpha(1, "Normal")
	}
	dots(opts.Found, foundColor)

	if opts.Title != "" {
		pdf.SetFont("Courier", "", 10)
		pdf.SetTextColor(nodeColor.r, nodeColor.g, nodeColor.b)
		pdf.Text(margin, margin-6, opts.Title)
	}
	return pdf.Output(w)
}
