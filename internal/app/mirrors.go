package app

import (
	"errors"

	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/mirror"
)

// noProject matches no module until a project is opened.
const noProject = ""

// mirrors are the live collections behind the views.
type mirrors struct {
	projects   *mirror.Mirror[backend.Project]
	modules    *mirror.Mirror[backend.Module] // modules of the open project
	allModules *mirror.Mirror[backend.Module]
	users      *mirror.Mirror[backend.Member]
	roles      *mirror.Mirror[backend.Role]
	members    *mirror.Mirror[backend.ProjectMember]
	started    bool
}

type lifecycle interface {
	refresher
	Start() error
	Stop() error
	Loading() bool
}

func newMirrors(src mirror.Source, log *zap.Logger, onChange func()) *mirrors {
	opts := []mirror.Option{mirror.WithLogger(log.Named("mirror")), mirror.WithOnChange(onChange)}
	return &mirrors{
		projects:   mirror.New[backend.Project](src, backend.TableProjects, nil, nil, opts...),
		modules:    mirror.New[backend.Module](src, backend.TableModules, backend.Eq("project_id", noProject), nil, opts...),
		allModules: mirror.New[backend.Module](src, backend.TableModules, nil, nil, opts...),
		users:      mirror.New[backend.Member](src, backend.TableUsers, nil, nil, opts...),
		roles:      mirror.New[backend.Role](src, backend.TableRoles, nil, nil, opts...),
		members:    mirror.New[backend.ProjectMember](src, backend.TableProjectMembers, nil, nil, opts...),
	}
}

func (d *mirrors) all() []lifecycle {
	return []lifecycle{d.projects, d.modules, d.allModules, d.users, d.roles, d.members}
}

// start opens every change channel.
func (d *mirrors) start() error {
	for _, m := range d.all() {
		if err := m.Start(); err != nil {
			return err
		}
	}
	d.started = true
	return nil
}

func (d *mirrors) stop() error {
	var errs []error
	for _, m := range d.all() {
		errs = append(errs, m.Stop())
	}
	d.started = false
	return errors.Join(errs...)
}

func (d *mirrors) live() bool { return d.started }

func (d *mirrors) loading() bool {
	for _, m := range d.all() {
		if m.Loading() {
			return true
		}
	}
	return false
}
