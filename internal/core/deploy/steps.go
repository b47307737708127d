package deploy

import "fmt"

// BuildSteps assembles the remote redeploy sequence for one archive.
//
// The order is fixed: clear target, create target, extract directly into the
// target, stop containers, rebuild and start, remove the uploaded archive.
// Paths are substituted as-is and are expected to be shell-safe.
func BuildSteps(settings Settings, user, archiveName string) []RemoteStep {
	root := settings.RootFor(user)
	upload := settings.UploadPath(archiveName)
	compose := fmt.Sprintf("%s -f %s", settings.ComposeCommand, settings.ComposeFile)

	return []RemoteStep{
		{
			Command:     fmt.Sprintf("rm -rf %s", root),
			Description: fmt.Sprintf("Clear %s", root),
			Fatal:       true,
		},
		{
			Command:     fmt.Sprintf("mkdir -p %s", root),
			Description: fmt.Sprintf("Create %s", root),
			Fatal:       true,
		},
		{
			Command:     fmt.Sprintf("tar -xzf %s -C %s --strip-components=1", upload, root),
			Description: "Extract deployment package",
			Fatal:       true,
		},
		{
			Command:     fmt.Sprintf("cd %s && %s rm -s -f", root, compose),
			Description: "Stop existing containers",
			Fatal:       true,
		},
		{
			Command:     fmt.Sprintf("cd %s && %s up -d --build", root, compose),
			Description: "Build and start services",
			Fatal:       true,
		},
		{
			Command:     fmt.Sprintf("rm -f %s", upload),
			Description: "Remove uploaded package",
			Fatal:       true,
		},
	}
}
