package edgerouter

import (
	"bytes"
	"text/template"
)

// Framing wraps a command list into an executable script for one EdgeOS
// configuration entry point.
type Framing struct {
	// Name identifies the framing in logs.
	Name string

	// Interpreter runs the uploaded script on the router.
	Interpreter string

	tmpl *template.Template
}

type framingData struct {
	Commands []Command
	Epilogue []string
}

// NewFraming parses text as a script template. The template sees .Commands
// and .Epilogue.
func NewFraming(name, interpreter, text string) (Framing, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return Framing{}, err
	}
	return Framing{Name: name, Interpreter: interpreter, tmpl: tmpl}, nil
}

func mustFraming(name, interpreter, text string) Framing {
	f, err := NewFraming(name, interpreter, text)
	if err != nil {
		panic(err)
	}
	return f
}

// ScriptTemplate sources the vyatta script-template and runs commands in a
// configure session.
var ScriptTemplate = mustFraming("script-template", "/bin/vbash", `#!/bin/vbash
source /opt/vyatta/etc/functions/script-template
configure
{{range .Commands}}{{.}}
{{end}}commit
save
exit
{{range .Epilogue}}{{.}}
{{end}}`)

// CfgCmdWrapper drives every command through vyatta-cfg-cmd-wrapper inside
// a begin/end transaction.
var CfgCmdWrapper = mustFraming("cfg-cmd-wrapper", "/bin/bash", `#!/bin/bash
{{$w := "/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper"}}{{$w}} begin
{{range .Commands}}{{$w}} {{.}}
{{end}}{{$w}} commit
{{$w}} save
{{$w}} end
{{range .Epilogue}}{{.}}
{{end}}`)

// ReloadOpenVPN makes running OpenVPN daemons reread their configuration.
const ReloadOpenVPN = "sudo killall -HUP openvpn"

// Render produces the script text.
func (f Framing) Render(cmds []Command, epilogue ...string) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, framingData{Commands: cmds, Epilogue: epilogue}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
