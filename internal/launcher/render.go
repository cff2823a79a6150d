package launcher

import (
	"fmt"
	"strings"

	"github.com/example/odoo-launch/internal/manifest"
	"github.com/example/odoo-launch/internal/renderer"
)

// Mount maps a host path into the application container.
type Mount struct {
	Host     string
	Target   string
	ReadOnly bool
}

// descriptorContext is the data handed to the compose template. Exported
// field names are the template's vocabulary.
type descriptorContext struct {
	PostgresImage  string
	OdooImage      string
	RunID          string
	DBName         string
	DBUser         string
	DBPassword     string
	HTTPPort       int
	LongpollPort   int
	PGPort         int
	RunRoot        string
	SourceMounts   []Mount
	AddonsPath     string
	EnterpriseCode string
	Timezone       string
}

type renderParams struct {
	runID          string
	runRoot        string
	dbName         string
	httpPort       int
	longpollPort   int
	pgPort         int
	enterpriseCode string
}

// sourceMounts maps each configured addon directory to a deterministic
// in-container target: read-only mounts for the base addons, writable
// overlays for the extra ones.
func sourceMounts(entry manifest.Entry) ([]Mount, []string) {
	var mounts []Mount
	var targets []string
	for i, path := range entry.Addons {
		target := fmt.Sprintf("/mnt/extra-addons/addons_%02d", i)
		mounts = append(mounts, Mount{Host: path, Target: target, ReadOnly: true})
		targets = append(targets, target)
	}
	for i, path := range entry.ExtraAddons {
		target := fmt.Sprintf("/mnt/extra-addons/custom_%02d", i)
		mounts = append(mounts, Mount{Host: path, Target: target, ReadOnly: false})
		targets = append(targets, target)
	}
	return mounts, targets
}

func (l *Launcher) renderDescriptor(entry manifest.Entry, p renderParams, composeFile string) error {
	mounts, targets := sourceMounts(entry)
	addonsPath := strings.Join(append([]string{"/usr/lib/python3/dist-packages/odoo/addons"}, targets...), ",")

	data := descriptorContext{
		PostgresImage:  l.Manifest.Defaults.PostgresImage,
		OdooImage:      entry.Image,
		RunID:          p.runID,
		DBName:         p.dbName,
		DBUser:         dbUser,
		DBPassword:     dbPassword,
		HTTPPort:       p.httpPort,
		LongpollPort:   p.longpollPort,
		PGPort:         p.pgPort,
		RunRoot:        p.runRoot,
		SourceMounts:   mounts,
		AddonsPath:     addonsPath,
		EnterpriseCode: p.enterpriseCode,
		Timezone:       l.Manifest.Defaults.Timezone,
	}
	if err := renderer.Render(entry.ComposeTemplate, data, composeFile); err != nil {
		return err
	}
	return l.validate(composeFile, p.runID)
}
