package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"lmsportal/internal/chat"
	"lmsportal/internal/dashboard"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/model"
	"lmsportal/internal/session"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNotLoggedIn = errors.New("not logged in, run: lmsctl login -email EMAIL")
)

type commandLine struct {
	api       *lmsapi.Client
	store     session.Store
	log       *logsvc.Logger
	out       io.Writer
	in        io.Reader
	socketURL string
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL                         - sign in, the password is prompted")
	fmt.Fprintln(cli.out, "  signup -name NAME -email EMAIL             - create an account, the password is prompted")
	fmt.Fprintln(cli.out, "  logout                                     - forget the stored credential")
	fmt.Fprintln(cli.out, "  whoami                                     - show the signed-in account")
	fmt.Fprintln(cli.out, "  profile -name NAME -email EMAIL [-password] - update the account")
	fmt.Fprintln(cli.out, "  dashboard                                  - print the dashboard for your role")
	fmt.Fprintln(cli.out, "  enroll -course ID | unenroll -course ID    - join or leave a course")
	fmt.Fprintln(cli.out, "  submit -assignment ID [-file PATH] [-text TEXT]")
	fmt.Fprintln(cli.out, "  course -title TITLE [-description TEXT]    - create a course (teachers)")
	fmt.Fprintln(cli.out, "  assignment -course ID -title TITLE -due RFC3339 [-description TEXT]")
	fmt.Fprintln(cli.out, "  submissions -assignment ID                 - list submissions (teachers)")
	fmt.Fprintln(cli.out, "  grade -course ID -assignment ID -submission ID -grade GRADE")
	fmt.Fprintln(cli.out, "  chat                                       - join the chat room, one message per line")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginEmail := loginCmd.String("email", "", "Account email. The password will be prompted next.")

	signupCmd := flag.NewFlagSet("signup", flag.ContinueOnError)
	signupName := signupCmd.String("name", "", "Display name.")
	signupEmail := signupCmd.String("email", "", "Account email. The password will be prompted next.")

	profileCmd := flag.NewFlagSet("profile", flag.ContinueOnError)
	profileName := profileCmd.String("name", "", "New display name.")
	profileEmail := profileCmd.String("email", "", "New email.")
	profilePwd := profileCmd.Bool("password", false, "Prompt for a new password.")

	enrollCmd := flag.NewFlagSet(args[1], flag.ContinueOnError)
	enrollCourse := enrollCmd.String("course", "", "Course id.")

	submitCmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	submitAssignment := submitCmd.String("assignment", "", "Assignment id.")
	submitFile := submitCmd.String("file", "", "File to attach.")
	submitText := submitCmd.String("text", "", "Text answer.")

	courseCmd := flag.NewFlagSet("course", flag.ContinueOnError)
	courseTitle := courseCmd.String("title", "", "Course title.")
	courseDesc := courseCmd.String("description", "", "Course description.")

	assignmentCmd := flag.NewFlagSet("assignment", flag.ContinueOnError)
	assignmentCourse := assignmentCmd.String("course", "", "Course id.")
	assignmentTitle := assignmentCmd.String("title", "", "Assignment title.")
	assignmentDesc := assignmentCmd.String("description", "", "Assignment description.")
	assignmentDue := assignmentCmd.String("due", "", "Due date, RFC3339.")

	submissionsCmd := flag.NewFlagSet("submissions", flag.ContinueOnError)
	submissionsAssignment := submissionsCmd.String("assignment", "", "Assignment id.")

	gradeCmd := flag.NewFlagSet("grade", flag.ContinueOnError)
	gradeCourse := gradeCmd.String("course", "", "Course id.")
	gradeAssignment := gradeCmd.String("assignment", "", "Assignment id.")
	gradeSubmission := gradeCmd.String("submission", "", "Submission id.")
	gradeValue := gradeCmd.String("grade", "", "Grade to record.")

	for _, fs := range []*flag.FlagSet{loginCmd, signupCmd, profileCmd, enrollCmd, submitCmd, courseCmd, assignmentCmd, submissionsCmd, gradeCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, pwd)

	case "signup":
		if err := signupCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *signupName == "" || *signupEmail == "" {
			signupCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			signupCmd.Usage()
			return errHelp
		}
		return cli.signup(ctx, *signupName, *signupEmail, pwd)

	case "logout":
		if err := cli.store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "logged out")
		return nil

	case "whoami":
		return cli.whoami(ctx)

	case "profile":
		if err := profileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *profileName == "" || *profileEmail == "" {
			profileCmd.Usage()
			return errHelp
		}
		var pwd string
		if *profilePwd {
			var err error
			if pwd, err = cli.promptPassword(); err != nil {
				return err
			}
		}
		return cli.updateProfile(ctx, lmsapi.ProfileUpdate{Name: *profileName, Email: *profileEmail, Password: pwd})

	case "dashboard":
		return cli.dashboard(ctx)

	case "enroll", "unenroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollCourse == "" {
			enrollCmd.Usage()
			return errHelp
		}
		return cli.enrollment(ctx, args[1] == "enroll", *enrollCourse)

	case "submit":
		if err := submitCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *submitAssignment == "" {
			submitCmd.Usage()
			return errHelp
		}
		return cli.submit(ctx, *submitAssignment, *submitFile, *submitText)

	case "course":
		if err := courseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *courseTitle == "" {
			courseCmd.Usage()
			return errHelp
		}
		return cli.createCourse(ctx, *courseTitle, *courseDesc)

	case "assignment":
		if err := assignmentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *assignmentCourse == "" || *assignmentTitle == "" || *assignmentDue == "" {
			assignmentCmd.Usage()
			return errHelp
		}
		due, err := time.Parse(time.RFC3339, *assignmentDue)
		if err != nil {
			return fmt.Errorf("due must be RFC3339 (got '%s')", *assignmentDue)
		}
		return cli.createAssignment(ctx, *assignmentCourse, *assignmentTitle, *assignmentDesc, due)

	case "submissions":
		if err := submissionsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *submissionsAssignment == "" {
			submissionsCmd.Usage()
			return errHelp
		}
		return cli.submissions(ctx, *submissionsAssignment)

	case "grade":
		if err := gradeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradeCourse == "" || *gradeAssignment == "" || *gradeSubmission == "" || *gradeValue == "" {
			gradeCmd.Usage()
			return errHelp
		}
		return cli.grade(ctx, *gradeCourse, *gradeAssignment, *gradeSubmission, *gradeValue)

	case "chat":
		return cli.chat(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) token(ctx context.Context) (string, error) {
	tok, ok, err := cli.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errNotLoggedIn
	}
	return tok, nil
}

// apiErr maps a rejected credential to the logged-out state, like the portal does.
func (cli *commandLine) apiErr(ctx context.Context, err error, fallback string) error {
	if errors.Is(err, lmsapi.ErrUnauthorized) {
		if cerr := cli.store.Clear(ctx); cerr != nil {
			cli.log.Printf("lmsctl: clear credential: %v", cerr)
		}
		return errNotLoggedIn
	}
	return errors.New(lmsapi.Message(err, fallback))
}

func (cli *commandLine) signedIn(ctx context.Context, res lmsapi.AuthResult, fallback string) error {
	if res.Token == "" {
		if res.Message != "" {
			return errors.New(res.Message)
		}
		return errors.New(fallback)
	}
	if err := cli.store.Set(ctx, res.Token); err != nil {
		return err
	}
	if res.User != nil {
		fmt.Fprintf(cli.out, "signed in as %s (%s)\n", res.User.Name, res.User.Role)
		return nil
	}
	fmt.Fprintln(cli.out, "signed in")
	return nil
}

func (cli *commandLine) login(ctx context.Context, email, pwd string) error {
	res, err := cli.api.Login(ctx, lmsapi.Credentials{Email: email, Password: pwd})
	if err != nil {
		return errors.New(lmsapi.Message(err, "Login failed"))
	}
	return cli.signedIn(ctx, res, "Login failed")
}

func (cli *commandLine) signup(ctx context.Context, name, email, pwd string) error {
	res, err := cli.api.Register(ctx, lmsapi.Registration{Name: name, Email: email, Password: pwd})
	if err != nil {
		return errors.New(lmsapi.Message(err, "Signup failed"))
	}
	return cli.signedIn(ctx, res, "Signup failed")
}

func (cli *commandLine) whoami(ctx context.Context) error {
	tok, err := cli.token(ctx)
	if err != nil {
		return err
	}
	user, err := cli.api.Me(ctx, tok)
	if err != nil {
		return cli.apiErr(ctx, err, "Could not load your account")
	}
	fmt.Fprintf(cli.out, "%s <%s> %s\n", user.Name, user.Email, user.Role)
	return nil
}

func (cli *commandLine) updateProfile(ctx context.Context, in lmsapi.ProfileUpdate) error {
	tok, err := cli.token(ctx)
	if err != nil {
		return err
	}
	user, err := cli.api.UpdateProfile(ctx, tok, in)
	if err != nil {
		return cli.apiErr(ctx, err, "Profile update failed")
	}
	fmt.Fprintf(cli.out, "profile updated: %s <%s>\n", user.Name, user.Email)
	return nil
}

// view signs in to the dashboard matching the stored credential's role.
func (cli *commandLine) view(ctx context.Context) (dashboard.View, error) {
	tok, err := cli.token(ctx)
	if err != nil {
		return nil, err
	}
	user, err := cli.api.Me(ctx, tok)
	if err != nil {
		return nil, cli.apiErr(ctx, err, "Could not load your account")
	}
	return dashboard.For(dashboard.Deps{API: cli.api, Log: cli.log}, tok, user), nil
}

func (cli *commandLine) studentView(ctx context.Context) (*dashboard.StudentView, error) {
	v, err := cli.view(ctx)
	if err != nil {
		return nil, err
	}
	sv, ok := v.(*dashboard.StudentView)
	if !ok {
		return nil, errors.New("this command is for students")
	}
	return sv, nil
}

func (cli *commandLine) teacherView(ctx context.Context) (*dashboard.TeacherView, error) {
	v, err := cli.view(ctx)
	if err != nil {
		return nil, err
	}
	tv, ok := v.(*dashboard.TeacherView)
	if !ok {
		return nil, errors.New("this command is for teachers")
	}
	return tv, nil
}

func (cli *commandLine) print(v any) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (cli *commandLine) dashboard(ctx context.Context) error {
	v, err := cli.view(ctx)
	if err != nil {
		return err
	}
	if err := v.Refresh(ctx); err != nil {
		return cli.apiErr(ctx, err, "Could not load dashboard")
	}
	switch v := v.(type) {
	case *dashboard.StudentView:
		return cli.print(v.State())
	case *dashboard.TeacherView:
		return cli.print(v.State())
	}
	return nil
}

func (cli *commandLine) enrollment(ctx context.Context, join bool, courseID string) error {
	v, err := cli.studentView(ctx)
	if err != nil {
		return err
	}
	if join {
		err = v.Enroll(ctx, courseID)
	} else {
		err = v.Unenroll(ctx, courseID)
	}
	if err != nil {
		return cli.apiErr(ctx, err, "Enrollment change failed")
	}
	if join {
		fmt.Fprintf(cli.out, "enrolled in %s\n", courseID)
	} else {
		fmt.Fprintf(cli.out, "unenrolled from %s\n", courseID)
	}
	return nil
}

func (cli *commandLine) submit(ctx context.Context, assignmentID, path, text string) error {
	v, err := cli.studentView(ctx)
	if err != nil {
		return err
	}
	in := lmsapi.SubmissionInput{Text: text}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in.File = &lmsapi.Upload{Name: filepath.Base(path), Content: f}
	}
	if err := v.Submit(ctx, assignmentID, in); err != nil {
		if errors.Is(err, dashboard.ErrEmptySubmission) {
			return err
		}
		return cli.apiErr(ctx, err, "Submission failed")
	}
	fmt.Fprintf(cli.out, "submitted %s\n", assignmentID)
	return nil
}

func (cli *commandLine) createCourse(ctx context.Context, title, description string) error {
	v, err := cli.teacherView(ctx)
	if err != nil {
		return err
	}
	c, err := v.CreateCourse(ctx, title, description)
	if err != nil {
		return cli.apiErr(ctx, err, "Course creation failed")
	}
	fmt.Fprintf(cli.out, "created course %s %s\n", c.ID, c.Title)
	return nil
}

func (cli *commandLine) createAssignment(ctx context.Context, courseID, title, description string, due time.Time) error {
	v, err := cli.teacherView(ctx)
	if err != nil {
		return err
	}
	v.Select(courseID, "")
	a, err := v.CreateAssignment(ctx, title, description, due)
	if err != nil {
		return cli.apiErr(ctx, err, "Assignment creation failed")
	}
	fmt.Fprintf(cli.out, "created assignment %s %s due %s\n", a.ID, a.Title, a.DueDate.Format(time.RFC3339))
	return nil
}

func (cli *commandLine) submissions(ctx context.Context, assignmentID string) error {
	v, err := cli.teacherView(ctx)
	if err != nil {
		return err
	}
	subs, err := v.ViewSubmissions(ctx, assignmentID)
	if err != nil {
		return cli.apiErr(ctx, err, "Could not load submissions")
	}
	return cli.print(subs)
}

func (cli *commandLine) grade(ctx context.Context, courseID, assignmentID, submissionID, grade string) error {
	v, err := cli.teacherView(ctx)
	if err != nil {
		return err
	}
	v.Select(courseID, assignmentID)
	if err := v.Grade(ctx, submissionID, grade); err != nil {
		return cli.apiErr(ctx, err, "Grading failed")
	}
	for _, s := range v.State().Submissions {
		if s.ID == submissionID && s.Grade != nil {
			fmt.Fprintf(cli.out, "graded %s: %s\n", submissionID, s.Grade)
		}
	}
	return nil
}

// chat joins the room and sends each line read from cli.in until EOF.
func (cli *commandLine) chat(ctx context.Context) error {
	tok, err := cli.token(ctx)
	if err != nil {
		return err
	}
	t, err := chat.Dial(ctx, cli.socketURL, nil)
	if err != nil {
		return err
	}
	room := chat.NewRoom(t, tok, func(m model.ChatMessage) {
		fmt.Fprintf(cli.out, "%s: %s\n", m.User, m.Message)
	})
	defer room.Close()
	fmt.Fprintf(cli.out, "joined as %s\n", room.Name())

	lines := bufio.NewScanner(cli.in)
	for lines.Scan() {
		if err := room.Send(ctx, lines.Text()); err != nil {
			return err
		}
	}
	return lines.Err()
}
