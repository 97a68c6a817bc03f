package clientside

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"os"
)

// Credentials is what the client needs to attempt a password login.
type Credentials struct {
	Email    string
	Password string
}

// resolveCredentials gives explicit --email/--password flags priority
// over prompting; otherwise, if stdin is a terminal, it prompts
// interactively (grounded on tombee-conductor's SurveyPrompter);
// otherwise it fails rather than hang a non-interactive process
// waiting on input that will never arrive.
func resolveCredentials(flagEmail, flagPassword string) (Credentials, error) {
	if flagEmail != "" && flagPassword != "" {
		return Credentials{Email: flagEmail, Password: flagPassword}, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return Credentials{}, fmt.Errorf("clientside: no token on disk and no --email/--password given in a non-interactive session")
	}

	email := flagEmail
	if email == "" {
		if err := survey.AskOne(&survey.Input{Message: "Email:"}, &email, survey.WithValidator(survey.Required)); err != nil {
			return Credentials{}, fmt.Errorf("clientside: prompt email: %w", err)
		}
	}

	password := flagPassword
	if password == "" {
		if err := survey.AskOne(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required)); err != nil {
			return Credentials{}, fmt.Errorf("clientside: prompt password: %w", err)
		}
	}

	return Credentials{Email: email, Password: password}, nil
}
