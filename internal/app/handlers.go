package app

import (
	"math"

	"github.com/gdamore/tcell/v2"
)

// HandleEvent routes a terminal event. It returns ErrQuit when the user
// asks to exit.
func (app *Application) HandleEvent(ev tcell.Event) error {
	app.mu.Lock()
	session := app.session
	app.mu.Unlock()
	if session == nil {
		return nil
	}

	switch ev := ev.(type) {
	case *tcell.EventResize:
		app.handleResize()
		return nil
	case *tcell.EventKey:
		return app.handleKey(ev)
	default:
		return nil
	}
}

func (app *Application) handleResize() {
	app.term.Redraw()
	app.session.Resize(app.term.EditorRows())
	app.setStatus("")
}

func (app *Application) handleKey(ev *tcell.EventKey) error {
	var msg string
	var err error

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlQ:
		return ErrQuit
	case tcell.KeyCtrlS:
		msg, err = app.save()
	case tcell.KeyCtrlP:
		err = app.toggleMode()
	case tcell.KeyCtrlT:
		if app.term.TogglePreview() {
			msg = "preview on"
		} else {
			msg = "preview off"
		}
	case tcell.KeyRune:
		err = app.insert(string(ev.Rune()))
	case tcell.KeyEnter:
		err = app.insert("\n")
	case tcell.KeyTab:
		err = app.insert("\t")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		err = app.backspace()
	case tcell.KeyDelete:
		err = app.deleteForward()
	case tcell.KeyLeft:
		app.moveCursor(app.doc.Cursor() - 1)
	case tcell.KeyRight:
		app.moveCursor(app.doc.Cursor() + 1)
	case tcell.KeyUp:
		app.moveLine(-1)
	case tcell.KeyDown:
		app.moveLine(1)
	case tcell.KeyHome:
		line, _ := app.cursorLineCol()
		app.moveCursor(app.session.Offset(line, 0))
	case tcell.KeyEnd:
		line, _ := app.cursorLineCol()
		app.moveCursor(app.session.Offset(line, math.MaxInt))
	case tcell.KeyPgUp:
		app.session.ScrollLines(-app.term.EditorRows())
	case tcell.KeyPgDn:
		app.session.ScrollLines(app.term.EditorRows())
	}

	if err != nil {
		app.logger.Warn("key %s: %v", ev.Name(), err)
		msg = err.Error()
	}
	app.setStatus("%s", msg)
	return nil
}

func (app *Application) save() (string, error) {
	content := app.session.Content()

	app.mu.Lock()
	defer app.mu.Unlock()
	if err := app.doc.Save(content); err != nil {
		return "", err
	}
	app.logger.Info("saved %s (%d bytes)", app.doc.Path, len(content))
	return "saved", nil
}

func (app *Application) insert(text string) error {
	if err := app.editable(); err != nil {
		return err
	}
	app.mu.Lock()
	pos := app.doc.cursor
	app.mu.Unlock()

	if err := app.session.Insert(pos, text); err != nil {
		return err
	}
	app.edited(pos + len([]rune(text)))
	return nil
}

func (app *Application) backspace() error {
	if err := app.editable(); err != nil {
		return err
	}
	app.mu.Lock()
	pos := app.doc.cursor
	app.mu.Unlock()
	if pos == 0 {
		return nil
	}

	if err := app.session.Delete(pos-1, 1); err != nil {
		return err
	}
	app.edited(pos - 1)
	return nil
}

func (app *Application) deleteForward() error {
	if err := app.editable(); err != nil {
		return err
	}
	app.mu.Lock()
	pos := app.doc.cursor
	app.mu.Unlock()
	if pos >= app.session.Len() {
		return nil
	}

	if err := app.session.Delete(pos, 1); err != nil {
		return err
	}
	app.edited(pos)
	return nil
}

func (app *Application) editable() error {
	if app.doc.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func (app *Application) edited(cursor int) {
	app.mu.Lock()
	app.doc.modified = true
	app.mu.Unlock()
	app.moveCursor(cursor)
}

// moveCursor clamps pos to the content and scrolls it into view.
func (app *Application) moveCursor(pos int) {
	pos = min(max(pos, 0), app.session.Len())

	app.mu.Lock()
	app.doc.cursor = pos
	app.mu.Unlock()

	app.scrollToCursor()
}

// moveLine moves the cursor delta lines, keeping its column when the
// target line is long enough.
func (app *Application) moveLine(delta int) {
	line, col := app.cursorLineCol()
	target := line + delta
	if target < 0 || target >= app.session.LineCount() {
		return
	}
	app.moveCursor(app.session.Offset(target, col))
}

// cursorLineCol applies queued edits so line positions match the cursor.
func (app *Application) cursorLineCol() (line, col int) {
	app.session.Flush()
	app.mu.Lock()
	cursor := app.doc.cursor
	app.mu.Unlock()
	return app.session.LineCol(cursor)
}

func (app *Application) scrollToCursor() {
	app.mu.Lock()
	session, cursor := app.session, app.doc.cursor
	app.mu.Unlock()
	if session == nil {
		return
	}
	line, _ := session.LineCol(cursor)
	vs := session.Viewport()
	h := app.cfgItemHeight()
	first := int(vs.ScrollOffset / h)
	switch {
	case line < first:
		session.ScrollTo(line)
	case vs.VisibleCount > 0 && line >= first+vs.VisibleCount:
		session.ScrollTo(line - vs.VisibleCount + 1)
	}
}

func (app *Application) cfgItemHeight() float64 {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.cfg.Viewport.ItemHeight
}
