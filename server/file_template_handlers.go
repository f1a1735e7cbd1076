package server

import (
	"embed"
	"html/template"
	"io/fs"

	"github.com/jrsteele09/go-auth-starter/internal/utils"
)

//go:embed templates/*
var templateFiles embed.FS

var templateFuncs = template.FuncMap{
	// deref renders nullable columns, nil as ""
	"deref": utils.Value[string],
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Funcs(templateFuncs).Parse(string(content))
}
