package cli

import (
	"context"
)

// Posts lists the latest community posts.
func (a *App) Posts(ctx context.Context) error {
	if _, err := a.user(); err != nil {
		return err
	}
	posts, err := a.community.Posts(ctx)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		a.printf("No posts yet\n")
		return nil
	}
	for _, p := range posts {
		a.printf("[%s] %s, %s\n  %s\n", p.PostID, p.Author.Name(), p.CreatedAt.Local().Format(timeLayout), p.Content)
	}
	return nil
}

// Post publishes a new community post.
func (a *App) Post(ctx context.Context) error {
	m, err := a.member()
	if err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Write your post", a.out)
	if err != nil {
		return err
	}
	p, err := a.community.CreatePost(ctx, m.MemberID, text)
	if err != nil {
		return err
	}
	a.printf("Posted %s\n", p.PostID)
	return nil
}

// Comments prints the thread of a post, oldest first.
func (a *App) Comments(ctx context.Context, args []string) error {
	if _, err := a.user(); err != nil {
		return err
	}
	if len(args) != 1 {
		return usage("comments <post id>")
	}
	list, err := a.community.Comments(ctx, args[0])
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No comments\n")
		return nil
	}
	for _, c := range list {
		a.printf("  %s (%s): %s\n", c.Author.Name(), c.CreatedAt.Local().Format(timeLayout), c.Content)
	}
	return nil
}

// Comment adds a comment to a post.
func (a *App) Comment(ctx context.Context, args []string) error {
	m, err := a.member()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usage("comment <post id>")
	}
	text, err := getSimpleText(a.reader, "Your comment", a.out)
	if err != nil {
		return err
	}
	if _, err := a.community.AddComment(ctx, args[0], m.MemberID, text); err != nil {
		return err
	}
	a.printf("Comment added\n")
	return nil
}
